package channel

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// PipeCollector backs a sequential write-only channel with an OS pipe
// whose read end is gathered into a buffer, keeping at most max bytes.
// Useful for log-style channels whose output the host wants to inspect
// after the session ends.
type PipeCollector struct {
	w      *os.File
	Max    int64
	Buffer *bytes.Buffer
	Done   <-chan struct{}
}

// NewPipeCollector creates the pipe and starts the collecting goroutine.
// Close the collector (or the whole table) to let the goroutine finish;
// Done is closed once max bytes arrived or the write end closed.
func NewPipeCollector(max int64) (*PipeCollector, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("channel: failed to create pipe %v", err)
	}
	buffer := new(bytes.Buffer)
	done := make(chan struct{})
	go func() {
		io.CopyN(buffer, r, max+1)
		close(done)
		// drain so the writer never blocks or takes SIGPIPE
		io.Copy(io.Discard, r)
		r.Close()
	}()
	return &PipeCollector{
		w:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

func (p *PipeCollector) ReadAt(b []byte, off int64) (int, error) {
	return 0, io.EOF
}

func (p *PipeCollector) WriteAt(b []byte, off int64) (int, error) {
	return p.w.Write(b)
}

// Close closes the write end; collected bytes stay readable in Buffer.
func (p *PipeCollector) Close() error {
	return p.w.Close()
}

func (p *PipeCollector) String() string {
	return fmt.Sprintf("PipeCollector[%d/%d]", p.Buffer.Len(), p.Max)
}
