//go:build linux

package daemon

import (
	"fmt"
	"os"
	"syscall"

	"github.com/zhiqian1027/zerovm/pkg/seccomp"
	"github.com/zhiqian1027/zerovm/pkg/unixsocket"
)

func procSelfFd(f *os.File) string {
	return fmt.Sprintf("/proc/self/fd/%d", f.Fd())
}

// Init detects whether this process was started by a spawner. It must
// be the first thing main does. In an ordinary invocation it returns
// nil. In a spawned child it receives the command, applies rlimits,
// installs the seccomp filter, acknowledges over the control socket
// and returns the command for main to run.
func Init() (*Command, error) {
	if len(os.Args) < 2 || os.Args[1] != spawnArg {
		return nil, nil
	}
	conn, err := unixsocket.New(controlFd)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var cmd Command
	if err := recvGob(conn, &cmd); err != nil {
		return nil, err
	}
	if err := setup(&cmd); err != nil {
		// report before dying so the spawner sees the cause
		sendGob(conn, &Reply{Error: err.Error()})
		return nil, err
	}
	if err := sendGob(conn, &Reply{}); err != nil {
		return nil, err
	}
	return &cmd, nil
}

func setup(cmd *Command) error {
	for _, rl := range cmd.RLimits.PrepareRLimit() {
		if err := syscall.Setrlimit(rl.Res, &rl.Rlim); err != nil {
			return fmt.Errorf("daemon: setrlimit %s failed: %v", rl.String(), err)
		}
	}
	b := &seccomp.Builder{Allow: cmd.Allow}
	return b.Load()
}
