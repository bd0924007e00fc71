package objstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestWorker(t *testing.T) (*Worker, *SessionMap) {
	t.Helper()
	sessions := NewSessionMap()
	w, err := NewWorker(t.TempDir(), sessions)
	if err != nil {
		t.Fatalf("NewWorker() error = %v", err)
	}
	return w, sessions
}

func TestWorkerRegisterCreatesUserDirAndSession(t *testing.T) {
	w, sessions := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(w.Root(), "alice")); err != nil {
		t.Fatalf("user dir not created: %v", err)
	}
	name, ok := sessions.Lookup(1)
	if !ok || name != "alice" {
		t.Fatalf("session lookup = (%q, %v)", name, ok)
	}
}

func TestWorkerRegisterTwiceSameConnFails(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := w.Register(1, "alice")
	if CodeOf(err) != CodeAlreadyPresent {
		t.Fatalf("second Register() CodeOf = %d, want %d", CodeOf(err), CodeAlreadyPresent)
	}
}

func TestWorkerStoreRetrieveRoundTrip(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	payload := []byte("the quick brown fox")
	if err := w.Store(1, "block-a", payload); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	got, err := w.Retrieve(1, "block-a")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Retrieve() = %q, want %q", got, payload)
	}
}

func TestWorkerStoreLadderOfSizes(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	sizes := []int{100, 5000, 50000, 100000}
	name := "A"
	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i)
		}
		if err := w.Store(1, name, data); err != nil {
			t.Fatalf("Store(size=%d) error = %v", size, err)
		}
		got, err := w.Retrieve(1, name)
		if err != nil {
			t.Fatalf("Retrieve(size=%d) error = %v", size, err)
		}
		if len(got) != size {
			t.Fatalf("Retrieve(size=%d) returned %d bytes", size, len(got))
		}
		for i := range got {
			if got[i] != byte(i) {
				t.Fatalf("Retrieve(size=%d) byte %d = %d, want %d", size, i, got[i], byte(i))
			}
		}
	}
}

func TestWorkerStoreOnExistingNameUpdatesContent(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := w.Store(1, "block-a", []byte("version one")); err != nil {
		t.Fatalf("first Store() error = %v", err)
	}
	if err := w.Store(1, "block-a", []byte("v2")); err != nil {
		t.Fatalf("second Store() error = %v", err)
	}
	got, err := w.Retrieve(1, "block-a")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("Retrieve() = %q, want %q (STORE-on-existing-name must update)", got, "v2")
	}
}

func TestWorkerStoreWithoutRegisterFails(t *testing.T) {
	w, _ := newTestWorker(t)
	err := w.Store(99, "block-a", []byte("data"))
	if CodeOf(err) != CodeNotRegistered {
		t.Fatalf("Store() without Register CodeOf = %d, want %d", CodeOf(err), CodeNotRegistered)
	}
}

func TestWorkerRetrieveMissingBlockFails(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err := w.Retrieve(1, "no-such-block")
	if CodeOf(err) != CodeNoSuchBlock {
		t.Fatalf("Retrieve() CodeOf = %d, want %d", CodeOf(err), CodeNoSuchBlock)
	}
}

func TestWorkerDeleteThenDeleteAgainFails(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := w.Store(1, "block-a", []byte("data")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := w.Delete(1, "block-a"); err != nil {
		t.Fatalf("first Delete() error = %v", err)
	}
	err := w.Delete(1, "block-a")
	if CodeOf(err) != CodeNoSuchBlock {
		t.Fatalf("second Delete() CodeOf = %d, want %d", CodeOf(err), CodeNoSuchBlock)
	}
}

func TestWorkerLeaveRemovesSessionButKeepsFiles(t *testing.T) {
	w, sessions := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := w.Store(1, "block-a", []byte("data")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	w.Leave(1)
	if _, ok := sessions.Lookup(1); ok {
		t.Fatal("session still present after Leave()")
	}
	if _, err := os.Stat(filepath.Join(w.Root(), "alice", "block-a")); err != nil {
		t.Fatalf("block removed after Leave(): %v", err)
	}
}

func TestWorkerGetReportCountsAcrossUsers(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register(alice) error = %v", err)
	}
	if err := w.Register(2, "bob"); err != nil {
		t.Fatalf("Register(bob) error = %v", err)
	}
	if err := w.Store(1, "a1", make([]byte, 10)); err != nil {
		t.Fatalf("Store(a1) error = %v", err)
	}
	if err := w.Store(2, "b1", make([]byte, 20)); err != nil {
		t.Fatalf("Store(b1) error = %v", err)
	}
	rep, err := w.GetReport()
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if rep.LiveSessions != 2 {
		t.Errorf("LiveSessions = %d, want 2", rep.LiveSessions)
	}
	if rep.ObjectCount != 2 {
		t.Errorf("ObjectCount = %d, want 2", rep.ObjectCount)
	}
	if rep.TotalBytes != 30 {
		t.Errorf("TotalBytes = %d, want 30", rep.TotalBytes)
	}
}

func TestValidBlockNameRejectsTraversal(t *testing.T) {
	w, _ := newTestWorker(t)
	if err := w.Register(1, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := w.Store(1, "../escape", []byte("data"))
	if CodeOf(err) != CodeBadArgument {
		t.Fatalf("Store() with path traversal name CodeOf = %d, want %d", CodeOf(err), CodeBadArgument)
	}
}
