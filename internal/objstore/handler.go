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
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// connState is the per-connection state machine of spec.md §4.F.
type connState int

const (
	stateUnregistered connState = iota
	stateRegistered
	stateTerminated
)

const readChunkSize = 4096

// Handler owns one accepted connection end to end: it reads framed
// requests (via protocol.go/ioframe.go), dispatches them to the worker,
// and writes framed replies. It runs on its own goroutine and never
// touches another connection's state, matching kcptun's
// handleMux/handleClient goroutine-per-stream style
// (xtaci-kcptun/server/main.go), generalized here to spec.md §4.F's
// explicit state table.
type Handler struct {
	id       uint64
	conn     net.Conn
	worker   *Worker
	log      *logrus.Entry
	shutdown *atomic.Bool

	state   connState
	pending []byte
}

// NewHandler constructs a handler for a freshly accepted connection.
func NewHandler(id uint64, conn net.Conn, worker *Worker, log *logrus.Logger, shutdown *atomic.Bool) *Handler {
	return &Handler{
		id:       id,
		conn:     conn,
		worker:   worker,
		log:      log.WithField("conn_id", id),
		shutdown: shutdown,
		state:    stateUnregistered,
	}
}

// Serve runs the handler's request loop until LEAVE, peer EOF, the
// shutdown flag is observed, or an unrecoverable I/O error occurs. It
// always closes the connection and removes any session entry on exit
// (spec.md §4.F's "*" transitions).
func (h *Handler) Serve() {
	defer h.conn.Close()
	defer h.worker.Leave(h.id)

	for h.state != stateTerminated {
		if h.shutdown.Load() {
			h.log.Debug("shutdown observed, closing connection")
			return
		}

		line, eof, err := h.nextHeaderLine()
		if eof {
			h.log.Debug("peer closed connection")
			return
		}
		if err != nil {
			// Framing is unrecoverable once the header bound is exceeded
			// without finding the terminator: there is no well-defined
			// resync point, so the single KO reply is followed by closing
			// the connection rather than continuing to read garbage.
			h.reply(FormatKO(CodeOf(err)))
			h.log.WithError(err).Debug("malformed header, closing connection")
			return
		}

		req, err := ParseRequest(line)
		if err != nil {
			h.reply(FormatKO(CodeOf(err)))
			continue
		}
		h.log.WithFields(logrus.Fields{"verb": req.Verb, "name": req.Name}).Debug("request")

		if err := h.dispatch(req); err != nil {
			if err == errLeave {
				return
			}
			h.reply(FormatKO(CodeOf(err)))
		}
	}
}

// errLeave is a sentinel returned by dispatch to signal the LEAVE
// transition (Terminated state, no reply — spec.md §4.F).
var errLeave = &StoreError{Op: "handler.leave", Code: 0}

func (h *Handler) dispatch(req Request) error {
	switch req.Verb {
	case VerbRegister:
		return h.handleRegister(req.Name)
	case VerbStore:
		return h.handleStore(req.Name, req.Length)
	case VerbRetrieve:
		return h.handleRetrieve(req.Name)
	case VerbDelete:
		return h.handleDelete(req.Name)
	case VerbLeave:
		h.state = stateTerminated
		return errLeave
	default:
		return ErrBadArgument("handler.dispatch", nil)
	}
}

func (h *Handler) handleRegister(name string) error {
	if err := h.worker.Register(h.id, name); err != nil {
		return err
	}
	h.state = stateRegistered
	h.log = h.log.WithField("user", name)
	h.reply(FormatOK())
	return nil
}

func (h *Handler) handleStore(name string, length uint64) error {
	if h.state != stateRegistered {
		return ErrNotRegistered("handler.Store")
	}
	data, err := h.readPayload(length)
	if err != nil {
		return err
	}
	if err := h.worker.Store(h.id, name, data); err != nil {
		return err
	}
	h.reply(FormatOK())
	return nil
}

func (h *Handler) handleRetrieve(name string) error {
	if h.state != stateRegistered {
		return ErrNotRegistered("handler.Retrieve")
	}
	data, err := h.worker.Retrieve(h.id, name)
	if err != nil {
		return err
	}
	h.reply(FormatData(len(data)))
	h.reply(data)
	return nil
}

func (h *Handler) handleDelete(name string) error {
	if h.state != stateRegistered {
		return ErrNotRegistered("handler.Delete")
	}
	if err := h.worker.Delete(h.id, name); err != nil {
		return err
	}
	h.reply(FormatOK())
	return nil
}

// reply writes a framed response, silently abandoning the connection on
// failure (spec.md §7: "the handler abandons the connection silently
// after removing the session entry" — removal happens in Serve's deferred
// worker.Leave).
func (h *Handler) reply(b []byte) {
	if err := WriteFull(h.conn, b); err != nil {
		h.log.WithError(err).Debug("reply failed, abandoning connection")
		h.state = stateTerminated
	}
}

// nextHeaderLine returns the next header line (LF stripped), reading from
// the connection and accumulating into h.pending as needed. It implements
// spec.md §9's "Framing on a stream" guidance: a single read may deliver
// less than a header, exactly a header, a header plus payload prefix, or
// multiple pipelined headers; leftover bytes are stashed in h.pending for
// the next call.
func (h *Handler) nextHeaderLine() (line []byte, eof bool, err error) {
	for {
		headerLine, rest, ok, splitErr := SplitHeader(h.pending)
		if splitErr != nil {
			return nil, false, splitErr
		}
		if ok {
			h.pending = rest
			return headerLine, false, nil
		}

		buf := make([]byte, readChunkSize)
		n, readErr := h.conn.Read(buf)
		if n > 0 {
			h.pending = append(h.pending, buf[:n]...)
		}
		if readErr != nil {
			if n == 0 {
				return nil, true, nil
			}
			// Bytes were delivered alongside the error (e.g. a reader that
			// returns (n>0, io.EOF) in the same call); give SplitHeader one
			// more chance to find a complete header in them before giving up.
			headerLine, rest, ok, splitErr := SplitHeader(h.pending)
			if splitErr != nil {
				return nil, false, splitErr
			}
			if ok {
				h.pending = rest
				return headerLine, false, nil
			}
			return nil, true, nil
		}
	}
}

// readPayload returns the next length bytes of payload, consuming any
// prefix already buffered in h.pending before reading the remainder
// directly from the connection (spec.md §4.E point 3).
func (h *Handler) readPayload(length uint64) ([]byte, error) {
	if length > MaxPayloadLength {
		return nil, ErrOutOfMemory("handler.readPayload")
	}
	buf := make([]byte, length)
	have := copy(buf, h.pending)
	h.pending = h.pending[have:]
	if uint64(have) >= length {
		return buf, nil
	}
	if _, err := ReadFull(h.conn, buf[have:]); err != nil {
		return nil, ErrIO("handler.readPayload", err)
	}
	return buf, nil
}
