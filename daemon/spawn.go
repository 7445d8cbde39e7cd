//go:build linux

package daemon

import (
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/zhiqian1027/zerovm/pkg/memfd"
	"github.com/zhiqian1027/zerovm/pkg/rlimit"
	"github.com/zhiqian1027/zerovm/pkg/seccomp"
	"github.com/zhiqian1027/zerovm/pkg/unixsocket"
	"github.com/zhiqian1027/zerovm/pkg/ztrace"
	"github.com/zhiqian1027/zerovm/session"
)

const spawnTimeout = 10 * time.Second

// Daemon spawns successor node processes. It implements
// session.Spawner.
type Daemon struct {
	// Manifest is the manifest path handed to every successor
	Manifest string
	RLimits  rlimit.RLimits
	Allow    []string
	Trace    *ztrace.Tracer
}

// Spawn starts a successor for the given session. It returns 0 on
// success and a negated errno when the successor could not be brought
// up, leaving the caller's session untouched.
func (d *Daemon) Spawn(s *session.Session) int32 {
	if err := d.spawn(s.Node + 1); err != nil {
		d.trace().Info("spawn failed", zap.Error(err))
		return -int32(unix.EAGAIN)
	}
	return 0
}

func (d *Daemon) trace() *ztrace.Tracer {
	if d.Trace == nil {
		return ztrace.Nop()
	}
	return d.Trace
}

func (d *Daemon) spawn(node int) error {
	// a child whose filter cannot compile would die at setup; reject the
	// policy here instead of launching it
	b := &seccomp.Builder{Allow: d.Allow}
	if _, err := b.Assemble(); err != nil {
		return err
	}

	parent, child, err := unixsocket.Pair()
	if err != nil {
		return err
	}
	defer parent.Close()
	defer child.Close()

	childFile, err := child.File()
	if err != nil {
		return err
	}
	defer childFile.Close()

	// run the successor from a sealed copy of this binary
	exec, err := memfd.SelfExec("zerovm")
	if err != nil {
		return err
	}
	defer exec.Close()

	proc, err := os.StartProcess(procSelfFd(exec), []string{os.Args[0], spawnArg},
		&os.ProcAttr{
			Files: []*os.File{os.Stdin, os.Stdout, os.Stderr, childFile},
		})
	if err != nil {
		return err
	}
	// the successor outlives us, do not wait for it
	if err := proc.Release(); err != nil {
		return err
	}

	parent.SetDeadline(time.Now().Add(spawnTimeout))
	cmd := Command{
		Node:     node,
		Manifest: d.Manifest,
		RLimits:  d.RLimits,
		Allow:    d.Allow,
	}
	if err := sendGob(parent, &cmd); err != nil {
		return err
	}
	var reply Reply
	if err := recvGob(parent, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return &spawnError{reply.Error}
	}
	d.trace().Info("successor spawned", zap.Int("node", node))
	return nil
}

type spawnError struct {
	msg string
}

func (e *spawnError) Error() string {
	return "daemon: successor setup failed: " + e.msg
}
