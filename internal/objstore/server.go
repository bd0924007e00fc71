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
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Server is the acceptor/supervisor: it owns the listening socket, spawns
// one Handler goroutine per accepted connection, and drives the shutdown
// sequence. Grounded on original_source/src/objectstore.c's main()
// accept loop (1-second select timeout, pthread_list-based LIFO thread
// join) and on xtaci-kcptun/server/main.go's sync.WaitGroup-tracked
// handleMux/handleClient spawning — generalized here to track goroutines
// on an explicit LIFO stack rather than an unordered WaitGroup, since
// spec.md §5 requires LIFO join order.
type Server struct {
	ln       *Listener
	worker   *Worker
	sessions *SessionMap
	log      *logrus.Logger
	shutdown *atomic.Bool

	nextID uint64

	stackMu sync.Mutex
	stack   []*handlerEntry
}

type handlerEntry struct {
	h    *Handler
	done chan struct{}
}

// NewServer constructs a Server bound to the given listener, worker, and
// session map. shutdown is shared with lifecycle.go's signal goroutine: it
// is the sole cancellation mechanism (spec.md §5 invariant i).
func NewServer(ln *Listener, worker *Worker, sessions *SessionMap, log *logrus.Logger, shutdown *atomic.Bool) *Server {
	return &Server{
		ln:       ln,
		worker:   worker,
		sessions: sessions,
		log:      log,
		shutdown: shutdown,
	}
}

// Run accepts connections until the shutdown flag is set, spawning a
// Handler goroutine per connection, then joins every still-running
// handler in LIFO order before returning. It never returns an error for
// an orderly shutdown. An AcceptTimeout error other than a timeout, seen
// while the shutdown flag is still clear, is returned wrapped right away,
// without joining the running handlers.
func (s *Server) Run() error {
	s.log.WithField("socket", s.ln.Path()).Info("accepting connections")

	for !s.shutdown.Load() {
		conn, accepted, err := s.ln.AcceptTimeout()
		if !accepted {
			if err != nil {
				if s.shutdown.Load() {
					break
				}
				return errors.Wrap(err, "server.Run")
			}
			continue
		}
		s.spawn(conn)
	}

	s.log.Info("shutdown signaled, draining connections")
	s.joinAll()
	return nil
}

func (s *Server) spawn(conn net.Conn) {
	id := atomic.AddUint64(&s.nextID, 1)
	h := NewHandler(id, conn, s.worker, s.log, s.shutdown)
	entry := &handlerEntry{h: h, done: make(chan struct{})}

	s.stackMu.Lock()
	s.stack = append(s.stack, entry)
	s.stackMu.Unlock()

	go func() {
		defer close(entry.done)
		h.Serve()
	}()
}

// joinAll waits for every spawned handler to finish, in LIFO order: the
// most recently accepted connection is joined first, mirroring
// original_source/src/lib/pthread_list.c's stack-based thread registry.
func (s *Server) joinAll() {
	s.stackMu.Lock()
	stack := s.stack
	s.stack = nil
	s.stackMu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		<-stack[i].done
		s.log.WithField("conn_id", stack[i].h.id).Debug("handler terminated")
	}
}

// Close releases the listening socket. Callers invoke this after Run
// returns.
func (s *Server) Close() error {
	return s.ln.Close()
}
