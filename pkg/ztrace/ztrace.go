// Package ztrace records every trap crossing and session lifecycle
// event for diagnostics. It carries no behavioural contract: handlers
// run the same with a nop tracer.
package ztrace

import (
	"go.uber.org/zap"
)

// Tracer is the trace sink used by the dispatcher.
type Tracer struct {
	log *zap.Logger
}

// New creates a tracer over the given logger. A nil logger yields a
// tracer that drops everything.
func New(log *zap.Logger) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracer{log: log}
}

// Nop returns a tracer that drops everything.
func Nop() *Tracer {
	return New(nil)
}

// Enter records the start of a trap before dispatch.
func (t *Tracer) Enter(op string) {
	t.log.Debug(op + " called")
}

// Leave records a finished trap with its arguments and result.
func (t *Tracer) Leave(op string, ret int32, args []uint64) {
	t.log.Debug(op+" returned",
		zap.Int32("ret", ret),
		zap.Uint64s("args", args))
}

// Event records a handler-level diagnostic.
func (t *Tracer) Event(msg string, fields ...zap.Field) {
	t.log.Debug(msg, fields...)
}

// Info records a session lifecycle event.
func (t *Tracer) Info(msg string, fields ...zap.Field) {
	t.log.Info(msg, fields...)
}
