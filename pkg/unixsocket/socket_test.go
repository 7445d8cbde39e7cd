//go:build linux

package unixsocket

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func TestPairSendRecv(t *testing.T) {
	a, b, err := Pair()
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	msg := []byte("hello")
	if err := a.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 64)
	n, fds, err := b.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Errorf("recv = %q, want %q", buf[:n], msg)
	}
	if len(fds) != 0 {
		t.Errorf("recv passed %d fds, want 0", len(fds))
	}
}

func TestPairPassFd(t *testing.T) {
	a, b, err := Pair()
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	defer a.Close()
	defer b.Close()

	f, err := os.CreateTemp(t.TempDir(), "passed")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString("payload"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	if err := a.Send([]byte("fd"), int(f.Fd())); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 16)
	_, fds, err := b.Recv(buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(fds) != 1 {
		t.Fatalf("recv passed %d fds, want 1", len(fds))
	}
	got := os.NewFile(uintptr(fds[0]), "recv")
	defer got.Close()
	if _, err := got.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	b2, err := io.ReadAll(got)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(b2) != "payload" {
		t.Errorf("passed fd content = %q", b2)
	}
}

func TestNewBadFd(t *testing.T) {
	if _, err := New(-1); err == nil {
		t.Error("expected error for invalid fd")
	}
}
