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
	stderrors "errors"
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

// Wire error codes (spec table, §7). Stable across client/server versions.
const (
	CodeBadArgument    = 22  // malformed header, empty name, STORE length 0
	CodeNotRegistered  = 107 // worker call before REGISTER on this connection
	CodeAlreadyPresent = 114 // REGISTER / session insert on an occupied key
	CodeNoSuchBlock    = 2   // RETRIEVE/DELETE on a missing file
	CodeOutOfMemory    = 12  // allocation failure
)

// StoreError is the typed error every request handler eventually produces.
// Code is the value written on the wire as "KO <code> \n".
type StoreError struct {
	Op   string
	Code int
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Op
}

func (e *StoreError) Unwrap() error { return e.Err }

// newErr builds a StoreError with a fixed taxonomy code.
func newErr(op string, code int, err error) *StoreError {
	return &StoreError{Op: op, Code: code, Err: err}
}

// ErrBadArgument reports a malformed request or invalid input.
func ErrBadArgument(op string, err error) *StoreError {
	return newErr(op, CodeBadArgument, err)
}

// ErrNotRegistered reports a worker call with no live session for the connection.
func ErrNotRegistered(op string) *StoreError {
	return newErr(op, CodeNotRegistered, errors.New("connection is not registered"))
}

// ErrAlreadyPresent reports a REGISTER/insert colliding with an existing key.
func ErrAlreadyPresent(op string) *StoreError {
	return newErr(op, CodeAlreadyPresent, errors.New("already registered"))
}

// ErrNoSuchBlock reports RETRIEVE/DELETE on a name with no backing file.
func ErrNoSuchBlock(op string) *StoreError {
	return newErr(op, CodeNoSuchBlock, errors.New("no such block"))
}

// ErrOutOfMemory reports an allocation failure.
func ErrOutOfMemory(op string) *StoreError {
	return newErr(op, CodeOutOfMemory, errors.New("out of memory"))
}

// ErrIO wraps a filesystem or socket error into the io-failure class. The
// wire code mirrors the underlying errno where the platform exposes one,
// falling back to EIO otherwise.
func ErrIO(op string, err error) *StoreError {
	code := int(syscall.EIO)
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		code = int(errno)
	}
	return newErr(op, code, errors.Wrap(err, op))
}

// CodeOf extracts the wire code for any error produced by this package,
// defaulting to the io-failure class for errors it does not recognize.
func CodeOf(err error) int {
	var se *StoreError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return int(syscall.EIO)
}
