// Package trap is the gate between guest and host: the dispatcher
// decodes the syscall request from guest memory, routes it to exactly
// one handler and hands the signed result back to the guest. Every
// guest-supplied pointer, offset and size is validated here before it
// touches host memory or shared I/O state.
package trap

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhiqian1027/zerovm/pkg/userspace"
	"github.com/zhiqian1027/zerovm/pkg/ztrace"
	"github.com/zhiqian1027/zerovm/session"
)

// Op is the trap operation code, word 0 of the argument vector.
type Op uint64

// Operation codes accepted by the dispatcher. Anything else is rejected
// with the not-permitted error and no side effect.
const (
	OpFork Op = iota + 1
	OpExit
	OpRead
	OpWrite
	OpProt
	OpTest
)

var opString = []string{"Invalid", "Fork", "Exit", "Read", "Write", "Prot", "Test"}

func (o Op) String() string {
	if o > 0 && int(o) < len(opString) {
		return opString[o]
	}
	return fmt.Sprintf("Op(%d)", uint64(o))
}

// The guest argument vector: 6 machine words. Word 0 is the operation
// code, words 2-5 carry up to four operation arguments, word 1 is
// reserved.
const (
	vectorWords = 6
	vectorSize  = vectorWords * 8
)

type vector [vectorWords]uint64

type handlerFunc func(d *Dispatcher, v *vector) int32

// Dispatcher mediates every trap of one session. It is not reentrant:
// guest and host alternate strictly, so no locking is needed between a
// quota check and the transfer it guards.
type Dispatcher struct {
	sess  *session.Session
	valid Validator
	trace *ztrace.Tracer
	table map[Op]handlerFunc
}

// New creates a dispatcher bound to a session. A nil validator keeps
// the gate fail-closed: no range ever becomes executable. A nil tracer
// drops all diagnostics.
func New(s *session.Session, v Validator, t *ztrace.Tracer) *Dispatcher {
	if s == nil || s.Channels == nil || s.Space == nil {
		panic("trap: nil session context")
	}
	if v == nil {
		v = DenyAll
	}
	if t == nil {
		t = ztrace.Nop()
	}
	d := &Dispatcher{sess: s, valid: v, trace: t}
	d.table = map[Op]handlerFunc{
		OpFork:  forkHandle,
		OpExit:  exitHandle,
		OpRead:  readHandle,
		OpWrite: writeHandle,
		OpProt:  protHandle,
		OpTest:  testHandle,
	}
	return d
}

// Session returns the session this dispatcher serves.
func (d *Dispatcher) Session() *session.Session {
	return d.sess
}

// Dispatch runs one trap. args is the guest address of the argument
// vector; the returned value is what the guest observes: non-negative
// on success, a negated errno otherwise.
func (d *Dispatcher) Dispatch(args uint64) int32 {
	if d.sess.Terminated() {
		panic("trap: dispatch on terminated session")
	}
	// an argument vector whose end would wrap around the address space
	// must not reach translation
	if args > ^uint64(vectorSize-1) {
		return RetFault
	}
	space := d.sess.Space
	sys := space.Translate(args)
	if !space.CheckRange(sys, vectorSize, userspace.ProtRead) {
		return RetFault
	}
	raw := space.Slice(sys, vectorSize)
	var v vector
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(raw[8*i:])
	}
	op := Op(v[0])
	d.trace.Enter(op.String())

	var ret int32
	if h, ok := d.table[op]; ok {
		ret = h(d, &v)
	} else {
		d.trace.Event("operation not supported", zap.Uint64("op", v[0]))
		ret = RetPerm
	}
	d.trace.Leave(op.String(), ret, v[2:])
	return ret
}
