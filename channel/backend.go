package channel

import (
	"io"
	"os"
)

// Backend moves bytes for a descriptor at a given offset. os.File
// satisfies it directly for random-access channels; sequential endpoints
// wrap their stream and ignore the offset.
type Backend interface {
	io.ReaderAt
	io.WriterAt
}

// Stream adapts a sequential reader / writer pair. Offsets are ignored:
// the endpoint itself tracks position, mirroring the descriptor cursor.
type Stream struct {
	R io.Reader
	W io.Writer
}

func (s Stream) ReadAt(p []byte, off int64) (int, error) {
	if s.R == nil {
		return 0, io.EOF
	}
	return s.R.Read(p)
}

func (s Stream) WriteAt(p []byte, off int64) (int, error) {
	if s.W == nil {
		return 0, os.ErrInvalid
	}
	return s.W.Write(p)
}

// Close closes whichever stream ends hold resources.
func (s Stream) Close() error {
	var first error
	if c, ok := s.R.(io.Closer); ok {
		first = c.Close()
	}
	if c, ok := s.W.(io.Closer); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Null is the backend for unbound channels: reads hit end of data
// immediately, writes are discarded.
type Null struct{}

func (Null) ReadAt(p []byte, off int64) (int, error) {
	return 0, io.EOF
}

func (Null) WriteAt(p []byte, off int64) (int, error) {
	return len(p), nil
}

// Mem is a memory-backed random-access backend, mainly for tests and
// snapshot channels. Reads past the data report end of data.
type Mem struct {
	Data []byte
}

func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.Data)) {
		return 0, io.EOF
	}
	n := copy(p, m.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mem) WriteAt(p []byte, off int64) (int, error) {
	if need := off + int64(len(p)); need > int64(len(m.Data)) {
		grown := make([]byte, need)
		copy(grown, m.Data)
		m.Data = grown
	}
	return copy(m.Data[off:], p), nil
}

var (
	_ Backend = (*Mem)(nil)
	_ Backend = Stream{}
	_ Backend = Null{}
	_ Backend = (*os.File)(nil)
)
