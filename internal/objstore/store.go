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
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// dirMode is the directory creation mode from spec.md §4.D: "rwxrwxrwx
// masked by process umask", matching original_source's
// src/lib/workers/workers.c create_directory_if_not_exists (mkdir(name,
// 0777)).
const dirMode = 0o777

// fileMode is the block file creation mode, matching workers.c's
// store_block (open(path, O_CREAT|O_WRONLY, 0777)).
const fileMode = 0o777

// Report is the worker's on-demand aggregate snapshot (spec.md §3, §4.D).
type Report struct {
	LiveSessions int
	ObjectCount  int
	TotalBytes   int64
}

// Worker implements the object store's on-disk layout, per-block I/O, and
// aggregate reporting (spec.md §4.D), grounded on
// original_source/src/lib/workers/workers.c.
type Worker struct {
	root     string
	sessions *SessionMap
}

// NewWorker creates the store root directory if absent and returns a
// Worker bound to it and to the given session map.
func NewWorker(root string, sessions *SessionMap) (*Worker, error) {
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, ErrIO("worker.init", err)
	}
	return &Worker{root: root, sessions: sessions}, nil
}

// Root returns the store root directory.
func (w *Worker) Root() string { return w.root }

func (w *Worker) userDir(name string) string {
	return filepath.Join(w.root, name)
}

// ValidBlockName reports whether name is usable verbatim as a filename:
// non-empty, <= 255 bytes, no path separators, and not "." or ".."
// (spec.md §3).
func ValidBlockName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	return !strings.ContainsRune(name, '/') && !strings.ContainsRune(name, 0)
}

// Register ensures the user's directory exists and inserts (conn, name)
// into the session map. Fails with ErrAlreadyPresent if conn already has a
// session (spec.md §4.D).
func (w *Worker) Register(conn uint64, name string) error {
	if !ValidBlockName(name) {
		return ErrBadArgument("worker.Register", nil)
	}
	if err := os.MkdirAll(w.userDir(name), dirMode); err != nil {
		return ErrIO("worker.Register", err)
	}
	return w.sessions.Insert(conn, name)
}

// Store writes data to <root>/<user>/<block-name>, creating or truncating
// as needed. A STORE onto an existing name updates it (spec.md §9, Open
// Question 2), matching workers.c's store_block (O_CREAT|O_WRONLY, no
// O_EXCL).
func (w *Worker) Store(conn uint64, name string, data []byte) error {
	if !ValidBlockName(name) {
		return ErrBadArgument("worker.Store", nil)
	}
	user, ok := w.sessions.Lookup(conn)
	if !ok {
		return ErrNotRegistered("worker.Store")
	}
	path := filepath.Join(w.userDir(user), name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return ErrIO("worker.Store", err)
	}
	defer f.Close()
	if err := WriteFull(f, data); err != nil {
		return ErrIO("worker.Store", err)
	}
	return nil
}

// Retrieve reads the full contents of <root>/<user>/<block-name>. Fails
// with ErrNoSuchBlock if the file does not exist (spec.md §4.D).
func (w *Worker) Retrieve(conn uint64, name string) ([]byte, error) {
	if !ValidBlockName(name) {
		return nil, ErrBadArgument("worker.Retrieve", nil)
	}
	user, ok := w.sessions.Lookup(conn)
	if !ok {
		return nil, ErrNotRegistered("worker.Retrieve")
	}
	path := filepath.Join(w.userDir(user), name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSuchBlock("worker.Retrieve")
		}
		return nil, ErrIO("worker.Retrieve", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrIO("worker.Retrieve", err)
	}
	defer f.Close()
	if info.Size() > MaxPayloadLength {
		return nil, ErrOutOfMemory("worker.Retrieve")
	}
	buf := make([]byte, info.Size())
	if _, err := ReadFull(f, buf); err != nil {
		return nil, ErrIO("worker.Retrieve", err)
	}
	return buf, nil
}

// Delete unlinks <root>/<user>/<block-name>. Fails with ErrNoSuchBlock if
// absent (spec.md §4.D).
func (w *Worker) Delete(conn uint64, name string) error {
	if !ValidBlockName(name) {
		return ErrBadArgument("worker.Delete", nil)
	}
	user, ok := w.sessions.Lookup(conn)
	if !ok {
		return ErrNotRegistered("worker.Delete")
	}
	path := filepath.Join(w.userDir(user), name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNoSuchBlock("worker.Delete")
		}
		return ErrIO("worker.Delete", err)
	}
	return nil
}

// Leave removes any session entry for conn. The user's directory and all
// its objects remain on disk (spec.md §3, §4.D).
func (w *Worker) Leave(conn uint64) {
	w.sessions.Remove(conn)
}

// GetReport computes the worker's aggregate counters: live session count
// (from the session map) plus object count and total size, derived from a
// filesystem walk of the store root (spec.md §4.D), replacing workers.c's
// ftw()-based count_file_number_size with filepath.WalkDir.
func (w *Worker) GetReport() (Report, error) {
	rep := Report{LiveSessions: w.sessions.Len()}
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			rep.ObjectCount++
			rep.TotalBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return Report{}, ErrIO("worker.GetReport", err)
	}
	return rep, nil
}
