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
	"bytes"
	"strconv"
)

// HeaderMaxLen is the maximum header length in bytes, including the
// trailing LF (spec.md §4.E). It is one byte more than
// strlen("RETRIEVE") + 255-byte name + 3 separator bytes (266), the sum
// original_source/src/lib/shared.h builds its C limit from.
const HeaderMaxLen = 267

// ResponseMaxLen is the maximum length of an OK/KO/DATA response header,
// covering "DATA <20-digit length> \n" (spec.md §6).
const ResponseMaxLen = 29

// MaxPayloadLength bounds the size of a single STORE payload. The wire
// format allows any uint64 length (spec.md §4.E), but an unbounded
// make([]byte, length) on attacker- or client-controlled input can exhaust
// memory and crash the process; spec.md §7 reserves KO 12 for exactly this
// case. 1 GiB comfortably covers any realistic block while still catching
// the pathological lengths that would otherwise panic the handler.
const MaxPayloadLength = 1 << 30

// Verb identifies a request's operation.
type Verb string

const (
	VerbRegister Verb = "REGISTER"
	VerbStore    Verb = "STORE"
	VerbRetrieve Verb = "RETRIEVE"
	VerbDelete   Verb = "DELETE"
	VerbLeave    Verb = "LEAVE"
)

// Request is a fully parsed request header (spec.md §4.E).
type Request struct {
	Verb   Verb
	Name   string
	Length uint64 // only meaningful for STORE
}

// SplitHeader scans buf for the header-terminating LF within the first
// HeaderMaxLen bytes. If found, it returns the header line (without the
// LF) and the bytes immediately following it — which, for a STORE
// request, are the first bytes of the payload (spec.md §4.E point 3). If
// no LF appears within HeaderMaxLen bytes, ok is false and err reports
// the header as too long; if buf is simply not yet long enough to
// contain a full header, both ok and err are false/nil and the caller
// should read more.
func SplitHeader(buf []byte) (headerLine []byte, rest []byte, ok bool, err error) {
	scanLimit := len(buf)
	if scanLimit > HeaderMaxLen {
		scanLimit = HeaderMaxLen
	}
	idx := bytes.IndexByte(buf[:scanLimit], '\n')
	if idx >= 0 {
		return buf[:idx], buf[idx+1:], true, nil
	}
	if len(buf) >= HeaderMaxLen {
		return nil, nil, false, ErrBadArgument("protocol.SplitHeader", nil)
	}
	return nil, nil, false, nil
}

// ParseRequest tokenizes a header line (as returned by SplitHeader, LF
// already stripped) into a Request, validating the verb, name, and
// optional length per spec.md §4.E. A trailing space before the header
// terminator is tolerated because bytes.Fields splits on runs of
// whitespace and ignores leading/trailing runs.
func ParseRequest(headerLine []byte) (Request, error) {
	fields := bytes.Fields(headerLine)
	if len(fields) == 0 {
		return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
	}
	verb := Verb(fields[0])

	if verb == VerbLeave {
		return Request{Verb: VerbLeave}, nil
	}

	if len(fields) < 2 {
		return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
	}
	name := string(fields[1])
	if name == "" {
		return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
	}

	switch verb {
	case VerbRegister, VerbRetrieve, VerbDelete:
		if !ValidBlockName(name) {
			return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
		}
		return Request{Verb: verb, Name: name}, nil

	case VerbStore:
		if !ValidBlockName(name) {
			return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
		}
		if len(fields) < 3 {
			return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
		}
		length, err := strconv.ParseUint(string(fields[2]), 10, 64)
		if err != nil {
			return Request{}, ErrBadArgument("protocol.ParseRequest", err)
		}
		if length == 0 {
			return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
		}
		if length > MaxPayloadLength {
			return Request{}, ErrOutOfMemory("protocol.ParseRequest")
		}
		return Request{Verb: verb, Name: name, Length: length}, nil

	default:
		return Request{}, ErrBadArgument("protocol.ParseRequest", nil)
	}
}

// FormatOK renders the "OK \n" success reply (spec.md §6).
func FormatOK() []byte { return []byte("OK \n") }

// FormatData renders the "DATA <length> \n" header preceding a RETRIEVE
// payload (spec.md §6).
func FormatData(length int) []byte {
	return []byte("DATA " + strconv.Itoa(length) + " \n")
}

// FormatKO renders the "KO <code> \n" failure reply (spec.md §6, §7).
func FormatKO(code int) []byte {
	return []byte("KO " + strconv.Itoa(code) + " \n")
}
