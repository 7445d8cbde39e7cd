//go:build linux

// Package daemon respawns the node process. A fork request does not
// clone the running process; it starts a fresh copy of this binary
// from a sealed executable image, hands it the manifest over a
// seqpacket socket and waits for it to confirm that rlimits and the
// seccomp filter are in place.
package daemon

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/zhiqian1027/zerovm/pkg/rlimit"
	"github.com/zhiqian1027/zerovm/pkg/unixsocket"
)

const (
	spawnArg = "spawned"

	// child inherits the control socket as this fd
	controlFd = 3

	msgSize = 1 << 16
)

// Command is sent to a freshly spawned node process.
type Command struct {
	Node     int
	Manifest string // manifest path for the successor session
	RLimits  rlimit.RLimits
	Allow    []string // extra seccomp allows
}

// Reply reports the child's setup result back to the spawner.
type Reply struct {
	Error string
}

func sendGob(c *unixsocket.Conn, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("daemon: failed to encode message: %v", err)
	}
	return c.Send(buf.Bytes())
}

func recvGob(c *unixsocket.Conn, v interface{}) error {
	b := make([]byte, msgSize)
	n, _, err := c.Recv(b)
	if err != nil {
		return err
	}
	if err := gob.NewDecoder(bytes.NewReader(b[:n])).Decode(v); err != nil {
		return fmt.Errorf("daemon: failed to decode message: %v", err)
	}
	return nil
}
