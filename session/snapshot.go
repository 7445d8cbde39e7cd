package session

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/zhiqian1027/zerovm/channel"
)

// Snapshot is the checkpoint image produced by the test trap: the
// report so far plus the observable state of every channel.
type Snapshot struct {
	Node     int
	Report   Report
	Channels []ChannelState
}

// ChannelState is the snapshot of one descriptor's mutable state.
type ChannelState struct {
	Alias    string
	GetPos   int64
	PutPos   int64
	Counters [channel.LimitsCount]int64
	EOF      bool
}

// TakeSnapshot captures the current session state.
func TakeSnapshot(s *Session) *Snapshot {
	snap := &Snapshot{
		Node:     s.Node,
		Report:   s.Report,
		Channels: make([]ChannelState, 0, len(s.Channels)),
	}
	for _, d := range s.Channels {
		snap.Channels = append(snap.Channels, ChannelState{
			Alias:    d.Alias,
			GetPos:   d.GetPos,
			PutPos:   d.PutPos,
			Counters: d.Counters,
			EOF:      d.EOF,
		})
	}
	return snap
}

// WriterSaver checkpoints sessions as gob onto a writer.
type WriterSaver struct {
	W io.Writer
}

// Save implements Saver.
func (w WriterSaver) Save(s *Session) error {
	if err := gob.NewEncoder(w.W).Encode(TakeSnapshot(s)); err != nil {
		return fmt.Errorf("session: failed to encode snapshot %v", err)
	}
	return nil
}

// FileSaver checkpoints sessions into a file, truncating per save.
type FileSaver struct {
	Path string
}

// Save implements Saver.
func (f FileSaver) Save(s *Session) error {
	file, err := os.Create(f.Path)
	if err != nil {
		return fmt.Errorf("session: failed to create snapshot file %v", err)
	}
	defer file.Close()
	return WriterSaver{W: file}.Save(s)
}

// ReadSnapshot decodes a snapshot previously written by a saver.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("session: failed to decode snapshot %v", err)
	}
	return &snap, nil
}
