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
	"io"

	"github.com/pkg/errors"
)

// ReadFull reads exactly len(buf) bytes from r, looping until the buffer is
// full. A connection closing before len(buf) bytes arrive (io.EOF or
// io.ErrUnexpectedEOF) is reported as an error like any other failure —
// a caller expecting a fixed-size frame has no use for a short read. Go's
// net.Conn already retries the underlying syscall on EINTR internally, so
// unlike the C readn() this is modeled on
// (original_source/src/lib/socket/safeio.c), there is no explicit EINTR
// branch to reproduce here.
func ReadFull(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return n, errors.Wrap(err, "read-exact")
	}
	return n, nil
}

// WriteFull writes exactly len(buf) bytes to w, looping until everything is
// written or an unrecoverable error occurs. A zero-byte write with no error
// is retried like an interrupted one, matching the original's
// EINTR-equivalent policy for spurious zero-length writes.
func WriteFull(w io.Writer, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if err != nil {
			return errors.Wrap(err, "write-exact")
		}
		total += n
	}
	return nil
}
