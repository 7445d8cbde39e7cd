// Package session holds the per-sandbox context: the channel table, the
// guest address space and the final report. Exactly one live session
// exists per trap dispatcher; nothing here is safe for concurrent use
// and nothing needs to be.
package session

import (
	"github.com/zhiqian1027/zerovm/channel"
	"github.com/zhiqian1027/zerovm/pkg/userspace"
)

// Terminal state labels recorded in the report.
const (
	StateOK            = "ok"
	StateInternalError = "internal error"
)

// Report is the final record of a session: written once by whichever
// lifecycle handler terminates it, then consumed by teardown.
type Report struct {
	UserCode int64  // guest-supplied exit code
	HostCode int    // sandbox-internal code, 0 when clean
	State    string // terminal state label
}

// SetHostError records a sandbox-internal failure. The first recorded
// error wins; later calls are no-ops.
func (r *Report) SetHostError(code int, state string) {
	if r.HostCode != 0 {
		return
	}
	r.HostCode = code
	r.State = state
}

// Spawner creates a new sandboxed session (the fork collaborator).
// Spawn returns 0 on success or a negated errno; on failure the calling
// session keeps running.
type Spawner interface {
	Spawn(s *Session) int32
}

// Saver checkpoints session state (the test collaborator).
type Saver interface {
	Save(s *Session) error
}

// Session is the process-wide record of one sandboxed run. It owns the
// channel table and address space; ownership of the struct itself stays
// with whoever started the session, not with the trap layer.
type Session struct {
	Node     int // session identifier from the manifest
	Channels channel.Table
	Space    *userspace.Space
	Report   Report

	Spawner Spawner // optional; fork is not permitted without one
	Saver   Saver   // optional; test checkpoints are skipped without one

	terminated bool
}

// New creates a session context over an already-built channel table and
// address space.
func New(node int, channels channel.Table, space *userspace.Space) *Session {
	return &Session{
		Node:     node,
		Channels: channels,
		Space:    space,
	}
}

// Terminated reports whether a lifecycle handler already ended the
// session. No trap may be dispatched afterwards.
func (s *Session) Terminated() bool {
	return s.terminated
}

// Terminate finishes the session: channels close, the address space is
// released and the report becomes final. Only the first call acts.
func (s *Session) Terminate() {
	if s.terminated {
		return
	}
	s.terminated = true
	if s.Channels != nil {
		s.Channels.Close()
	}
	if s.Space != nil {
		s.Space.Close()
	}
}
