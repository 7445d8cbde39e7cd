package trap

import (
	"go.uber.org/zap"

	"github.com/zhiqian1027/zerovm/channel"
	"github.com/zhiqian1027/zerovm/pkg/userspace"
)

func readHandle(d *Dispatcher, v *vector) int32 {
	return d.read(int64(v[2]), v[3], int32(v[4]), int64(v[5]))
}

func writeHandle(d *Dispatcher, v *vector) int32 {
	return d.write(int64(v[2]), v[3], int32(v[4]), int64(v[5]))
}

// read moves up to size bytes from the channel into the guest buffer.
// Quota clamping happens strictly before the transfer; the descriptor
// accounts for whatever the backend actually moved.
func (d *Dispatcher) read(ch int64, buffer uint64, size int32, offset int64) int32 {
	c := d.sess.Channels.Desc(ch)
	if c == nil {
		d.trace.Event("read: channel out of range",
			zap.Int64("channel", ch), zap.Int32("size", size), zap.Int64("offset", offset))
		return RetInval
	}
	if size < 0 {
		return RetFault
	}
	if offset < 0 {
		return RetInval
	}
	if size == 0 {
		return 0
	}

	// destination must be guest memory writable over the full size
	space := d.sess.Space
	sys := space.Translate(buffer)
	if !space.CheckRange(sys, int64(size), userspace.ProtWrite) {
		return RetInval
	}

	if c.SeqReadable() {
		// the guest cannot seek a sequential channel
		offset = c.GetPos
	} else {
		// reads stop at the declared extent
		rest := c.Size - offset
		if rest <= 0 {
			return 0
		}
		if int64(size) > rest {
			size = int32(rest)
		}
	}

	if c.EOF {
		return 0
	}

	if c.Exceeded(channel.GetsLimit) {
		return RetQuota
	}
	tail := c.Tail(channel.GetSizeLimit)
	if int64(size) > tail {
		size = int32(tail)
	}
	if size < 1 {
		return RetQuota
	}

	return c.Read(space.Slice(sys, int64(size)), offset)
}

// write moves up to size bytes from the guest buffer to the channel.
// Mirrors read with the buffer permission flipped: the host only reads
// guest memory here.
func (d *Dispatcher) write(ch int64, buffer uint64, size int32, offset int64) int32 {
	c := d.sess.Channels.Desc(ch)
	if c == nil {
		d.trace.Event("write: channel out of range",
			zap.Int64("channel", ch), zap.Int32("size", size), zap.Int64("offset", offset))
		return RetInval
	}
	if size < 0 {
		return RetFault
	}
	if offset < 0 {
		return RetInval
	}
	if size == 0 {
		return 0
	}

	space := d.sess.Space
	sys := space.Translate(buffer)
	if !space.CheckRange(sys, int64(size), userspace.ProtRead) {
		return RetInval
	}

	if c.SeqWritable() {
		offset = c.PutPos
	}

	if c.Exceeded(channel.PutsLimit) {
		return RetQuota
	}
	tail := c.Tail(channel.PutSizeLimit)

	// a random-access write may not even be attempted past the byte
	// quota limit, nor past declared extent plus remaining budget
	if c.RndWritable() && offset >= c.Limits[channel.PutSizeLimit] {
		return RetInval
	}
	if offset >= c.Size+tail {
		return RetInval
	}

	if int64(size) > tail {
		size = int32(tail)
	}
	if size < 1 {
		return RetQuota
	}

	return c.Write(space.Slice(sys, int64(size)), offset)
}
