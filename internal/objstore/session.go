// The MIT License (MIT)
//
// Copyright (c) 2019 karjudev
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package objstore

import (
	"sync"
	"sync/atomic"
)

// partitionCount is the number of independent shards backing the session
// map. A power of two, so the modulo in shard below reduces to a bit mask.
// original_source/src/lib/hashtable/hashtable.c uses a single bucketed
// table; this generalizes it to spec.md §9's "choose at compile time,
// any power-of-two >= 8" partitioned design.
const partitionCount = 16

// partition is one shard of the session map: a plain Go map guarded by its
// own mutex. No I/O is ever performed while holding l (spec.md §5
// invariant iii).
type partition struct {
	l       sync.Mutex
	entries map[uint64]string
	count   int64 // read without the lock for reporting; written under l
}

// SessionMap is a partitioned concurrent mapping from connection id to
// user name, as specified in spec.md §4.C.
type SessionMap struct {
	parts [partitionCount]*partition
}

// NewSessionMap allocates an empty, ready-to-use session map.
func NewSessionMap() *SessionMap {
	sm := &SessionMap{}
	for i := range sm.parts {
		sm.parts[i] = &partition{entries: make(map[uint64]string)}
	}
	return sm
}

// shard mixes the low bits of id with a djb2-style constant, matching
// spec.md §9's guidance ("the reference uses a djb2-style mix; anything
// with reasonable dispersion is fine").
func shard(id uint64) uint64 {
	h := uint64(5381)
	for shift := 0; shift < 64; shift += 8 {
		h = ((h << 5) + h) ^ ((id >> uint(shift)) & 0xff)
	}
	return h % partitionCount
}

func (sm *SessionMap) partitionFor(id uint64) *partition {
	return sm.parts[shard(id)]
}

// Insert adds (id, name) to the map. It fails with ErrAlreadyPresent if id
// is already registered (spec.md §4.C).
func (sm *SessionMap) Insert(id uint64, name string) error {
	p := sm.partitionFor(id)
	p.l.Lock()
	defer p.l.Unlock()
	if _, exists := p.entries[id]; exists {
		return ErrAlreadyPresent("session.Insert")
	}
	p.entries[id] = name
	atomic.AddInt64(&p.count, 1)
	return nil
}

// Remove deletes id from the map if present, returning the prior value.
// Removing an absent id is a no-op (spec.md §4.F: LEAVE/EOF removal must
// be idempotent).
func (sm *SessionMap) Remove(id uint64) (string, bool) {
	p := sm.partitionFor(id)
	p.l.Lock()
	defer p.l.Unlock()
	name, exists := p.entries[id]
	if !exists {
		return "", false
	}
	delete(p.entries, id)
	atomic.AddInt64(&p.count, -1)
	return name, true
}

// Lookup returns the user name registered for id, if any.
func (sm *SessionMap) Lookup(id uint64) (string, bool) {
	p := sm.partitionFor(id)
	p.l.Lock()
	defer p.l.Unlock()
	name, exists := p.entries[id]
	return name, exists
}

// Len returns the total number of live session entries. Each partition's
// counter is read without its lock (spec.md §4.C: "a stale-but-monotonic
// read is acceptable" for reporting purposes).
func (sm *SessionMap) Len() int {
	var total int64
	for _, p := range sm.parts {
		total += atomic.LoadInt64(&p.count)
	}
	return int(total)
}
