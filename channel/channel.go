// Package channel defines the I/O endpoints visible to guest code: an
// ordered table of descriptors addressed by small integer handles, each
// carrying access mode, cursors and quota counters. Descriptors move
// bytes through a Backend and own the cursor / counter bookkeeping
// driven by what the backend actually transferred.
package channel

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// Limit indexes one quota dimension. Each descriptor carries a counter
// and a limit per dimension; a counter never exceeds its limit.
type Limit int

const (
	// GetsLimit counts read operations
	GetsLimit Limit = iota
	// GetSizeLimit counts cumulative bytes read
	GetSizeLimit
	// PutsLimit counts write operations
	PutsLimit
	// PutSizeLimit counts cumulative bytes written
	PutSizeLimit

	// LimitsCount is the number of quota dimensions
	LimitsCount
)

var limitString = []string{"Gets", "GetSize", "Puts", "PutSize"}

func (l Limit) String() string {
	if l >= 0 && l < LimitsCount {
		return limitString[l]
	}
	return "Invalid"
}

// Type encodes the access pattern per direction: whether the read side
// and the write side honour caller offsets or use internal cursors.
type Type int

const (
	// SeqGetSeqPut is sequential read, sequential write
	SeqGetSeqPut Type = iota
	// RndGetSeqPut is random-access read, sequential write
	RndGetSeqPut
	// SeqGetRndPut is sequential read, random-access write
	SeqGetRndPut
	// RndGetRndPut is random-access read, random-access write
	RndGetRndPut
)

var typeString = []string{"SeqGetSeqPut", "RndGetSeqPut", "SeqGetRndPut", "RndGetRndPut"}

func (t Type) String() string {
	if t >= SeqGetSeqPut && t <= RndGetRndPut {
		return typeString[t]
	}
	return "Invalid"
}

// Desc is one I/O endpoint. Created from the manifest before the session
// starts; handlers only mutate cursors, counters and the eof flag.
type Desc struct {
	Alias string
	Type  Type
	Size  int64 // declared byte extent, meaningful for random access only

	GetPos int64 // read cursor, sequential read side only
	PutPos int64 // write cursor, sequential write side only

	Limits   [LimitsCount]int64
	Counters [LimitsCount]int64

	EOF bool // once set, reads return empty forever

	Backend Backend
}

// SeqReadable reports whether reads ignore caller offsets.
func (d *Desc) SeqReadable() bool {
	return d.Type == SeqGetSeqPut || d.Type == SeqGetRndPut
}

// SeqWritable reports whether writes ignore caller offsets.
func (d *Desc) SeqWritable() bool {
	return d.Type == SeqGetSeqPut || d.Type == RndGetSeqPut
}

// RndReadable reports whether reads honour caller offsets.
func (d *Desc) RndReadable() bool {
	return !d.SeqReadable()
}

// RndWritable reports whether writes honour caller offsets.
func (d *Desc) RndWritable() bool {
	return !d.SeqWritable()
}

// Exceeded reports whether the operation-count quota of the given
// dimension is already exhausted.
func (d *Desc) Exceeded(l Limit) bool {
	return d.Counters[l] >= d.Limits[l]
}

// Tail returns the remaining byte budget of the given size dimension.
func (d *Desc) Tail(l Limit) int64 {
	return d.Limits[l] - d.Counters[l]
}

// Read transfers up to len(p) bytes from the backend at off into p and
// accounts for the transfer: one read operation, n bytes, cursor
// advance on the sequential side and eof on end of data. Returns the
// byte count moved or a negated errno.
func (d *Desc) Read(p []byte, off int64) int32 {
	if d.Backend == nil {
		return -int32(unix.EBADF)
	}
	n, err := d.Backend.ReadAt(p, off)
	d.Counters[GetsLimit]++
	d.Counters[GetSizeLimit] += int64(n)
	if d.SeqReadable() {
		d.GetPos += int64(n)
	}
	if err == io.EOF {
		d.EOF = true
		return int32(n)
	}
	if err != nil {
		return -int32(unix.EIO)
	}
	return int32(n)
}

// Write transfers len(p) bytes from p to the backend at off and accounts
// for the transfer. A random-access write landing past the declared
// extent grows it. Returns the byte count moved or a negated errno.
func (d *Desc) Write(p []byte, off int64) int32 {
	if d.Backend == nil {
		return -int32(unix.EBADF)
	}
	n, err := d.Backend.WriteAt(p, off)
	d.Counters[PutsLimit]++
	d.Counters[PutSizeLimit] += int64(n)
	if d.SeqWritable() {
		d.PutPos += int64(n)
	}
	if d.RndWritable() && off+int64(n) > d.Size {
		d.Size = off + int64(n)
	}
	if err != nil {
		return -int32(unix.EIO)
	}
	return int32(n)
}

// Close releases the backend if it holds resources.
func (d *Desc) Close() error {
	if c, ok := d.Backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Desc) String() string {
	return fmt.Sprintf("Channel[%s %v size=%d get=%d/%d(%d/%d) put=%d/%d(%d/%d)]",
		d.Alias, d.Type, d.Size,
		d.Counters[GetsLimit], d.Limits[GetsLimit],
		d.Counters[GetSizeLimit], d.Limits[GetSizeLimit],
		d.Counters[PutsLimit], d.Limits[PutsLimit],
		d.Counters[PutSizeLimit], d.Limits[PutSizeLimit])
}
