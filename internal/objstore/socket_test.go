package objstore

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListenAndAccept(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "objstore.sock")
	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	if ln.Path() != sockPath {
		t.Fatalf("Path() = %q, want %q", ln.Path(), sockPath)
	}

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _, err := ln.AcceptTimeout()
		if err == nil && conn != nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("AcceptTimeout() did not return the dialed connection")
	}
}

func TestAcceptTimeoutReturnsOnIdle(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "objstore.sock")
	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	conn, accepted, err := ln.AcceptTimeout()
	if err != nil {
		t.Fatalf("AcceptTimeout() error = %v", err)
	}
	if conn != nil {
		t.Fatal("AcceptTimeout() returned a connection with no dialer")
	}
	if accepted {
		t.Fatal("AcceptTimeout() accepted = true, want false on timeout")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "objstore.sock")
	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("first Listen() error = %v", err)
	}
	ln.ln.SetUnlinkOnClose(false)
	ln.ln.Close() // leave the socket file behind, simulating an unclean exit

	if _, err := os.Stat(sockPath); err != nil {
		t.Fatalf("stale socket file should still exist: %v", err)
	}

	ln2, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("second Listen() over stale socket error = %v", err)
	}
	defer ln2.Close()
}

func TestCloseUnlinksSocketPath(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "objstore.sock")
	ln, err := Listen(sockPath)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if err := ln.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Fatalf("socket path still exists after Close(): err = %v", err)
	}
}
