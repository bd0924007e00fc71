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
	"os"
	"time"

	"github.com/pkg/errors"
)

// acceptPollInterval is the readiness timeout used between shutdown-flag
// checks in the accept loop, matching the original's select()-with-timeval
// of {1, 0} (original_source/src/objectstore.c, main()'s accept loop).
const acceptPollInterval = 1 * time.Second

// Listener wraps a UNIX-domain stream listener bound to a well-known path.
// Close both stops accepting and unlinks the socket path, mirroring
// close_server_socket() in original_source/src/lib/socket/socket.c.
type Listener struct {
	path string
	ln   *net.UnixListener
}

// Listen binds a UNIX-domain stream socket at path, removing any stale
// socket file left over from a previous, uncleanly terminated run.
func Listen(path string) (*Listener, error) {
	if err := removeStaleSocket(path); err != nil {
		return nil, errors.Wrap(err, "listen: removing stale socket")
	}
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, errors.Wrap(err, "listen: resolving socket address")
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen: binding socket")
	}
	return &Listener{path: path, ln: ln}, nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.Remove(path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// AcceptTimeout waits up to acceptPollInterval for an incoming connection.
// It returns (conn, true, nil) on a successful accept, and (nil, false, nil)
// on a plain timeout, so the caller's accept loop can cooperatively re-check
// the shutdown flag, the Go analogue of the original's
// select()-before-accept readiness wait. Any other error is reported as
// (nil, false, err).
func (l *Listener) AcceptTimeout() (net.Conn, bool, error) {
	if err := l.ln.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
		return nil, false, errors.Wrap(err, "accept: setting deadline")
	}
	conn, err := l.ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "accept")
	}
	return conn, true, nil
}

// Close stops the listener and unlinks its socket path.
func (l *Listener) Close() error {
	err := l.ln.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	return err
}

// Path returns the filesystem path of the bound socket.
func (l *Listener) Path() string { return l.path }
