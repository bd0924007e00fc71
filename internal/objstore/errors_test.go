package objstore

import (
	"syscall"
	"testing"

	"github.com/pkg/errors"
)

func TestCodeOfKnownErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad-argument", ErrBadArgument("op", nil), CodeBadArgument},
		{"not-registered", ErrNotRegistered("op"), CodeNotRegistered},
		{"already-present", ErrAlreadyPresent("op"), CodeAlreadyPresent},
		{"no-such-block", ErrNoSuchBlock("op"), CodeNoSuchBlock},
		{"out-of-memory", ErrOutOfMemory("op"), CodeOutOfMemory},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CodeOf(c.err); got != c.want {
				t.Errorf("CodeOf(%v) = %d, want %d", c.err, got, c.want)
			}
		})
	}
}

func TestCodeOfUnrecognizedErrorDefaultsToEIO(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != int(syscall.EIO) {
		t.Errorf("CodeOf(plain error) = %d, want EIO(%d)", got, int(syscall.EIO))
	}
}

func TestErrIOExtractsErrno(t *testing.T) {
	wrapped := errors.Wrap(syscall.ENOSPC, "writing file")
	err := ErrIO("worker.Store", wrapped)
	if err.Code != int(syscall.ENOSPC) {
		t.Errorf("ErrIO code = %d, want ENOSPC(%d)", err.Code, int(syscall.ENOSPC))
	}
}

func TestErrIOFallsBackToEIOWithoutErrno(t *testing.T) {
	err := ErrIO("worker.Store", errors.New("generic failure"))
	if err.Code != int(syscall.EIO) {
		t.Errorf("ErrIO code = %d, want EIO(%d)", err.Code, int(syscall.EIO))
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	se := &StoreError{Op: "op", Code: CodeBadArgument, Err: inner}
	if got := se.Unwrap(); got != inner {
		t.Errorf("Unwrap() = %v, want %v", got, inner)
	}
}
