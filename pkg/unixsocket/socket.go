//go:build linux

// Package unixsocket provides the SOCK_SEQPACKET control plane between
// a running session and the process it spawns. Messages are small and
// framed by the socket; open files travel as unix rights.
package unixsocket

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

const oobSize = 128

// Conn is one end of a seqpacket pair.
type Conn struct {
	*net.UnixConn
}

// New wraps an inherited socket fd, marking it close-on-exec so it does
// not leak into further children.
func New(fd int) (*Conn, error) {
	syscall.CloseOnExec(fd)
	file := os.NewFile(uintptr(fd), "control")
	if file == nil {
		return nil, fmt.Errorf("unixsocket: fd %d is not valid", fd)
	}
	defer file.Close()
	conn, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("unixsocket: failed to wrap fd %d: %v", fd, err)
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unixsocket: fd %d is not a unix socket", fd)
	}
	return &Conn{uc}, nil
}

// Pair creates a connected seqpacket socket pair. Seqpacket keeps the
// gob messages framed and delivery reliable.
func Pair() (*Conn, *Conn, error) {
	fds, err := syscall.Socketpair(syscall.AF_LOCAL,
		syscall.SOCK_SEQPACKET|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("unixsocket: socketpair failed: %v", err)
	}
	a, err := New(fds[0])
	if err != nil {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
		return nil, nil, err
	}
	b, err := New(fds[1])
	if err != nil {
		a.Close()
		syscall.Close(fds[1])
		return nil, nil, err
	}
	return a, b, nil
}

// Send writes one message, attaching the given fds as unix rights.
func (c *Conn) Send(b []byte, fds ...int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = syscall.UnixRights(fds...)
	}
	if _, _, err := c.WriteMsgUnix(b, oob, nil); err != nil {
		return fmt.Errorf("unixsocket: send failed: %v", err)
	}
	return nil
}

// Recv reads one message into b, returning its length and any passed
// fds.
func (c *Conn) Recv(b []byte) (int, []int, error) {
	oob := make([]byte, oobSize)
	n, oobn, _, _, err := c.ReadMsgUnix(b, oob)
	if err != nil {
		return 0, nil, fmt.Errorf("unixsocket: recv failed: %v", err)
	}
	msgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, nil, fmt.Errorf("unixsocket: bad control message: %v", err)
	}
	var fds []int
	for _, m := range msgs {
		if m.Header.Level == syscall.SOL_SOCKET && m.Header.Type == syscall.SCM_RIGHTS {
			got, err := syscall.ParseUnixRights(&m)
			if err != nil {
				return 0, nil, fmt.Errorf("unixsocket: bad unix rights: %v", err)
			}
			fds = append(fds, got...)
		}
	}
	return n, fds, nil
}
