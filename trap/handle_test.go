//go:build linux

package trap

import (
	"strings"
	"testing"

	"github.com/zhiqian1027/zerovm/channel"
	"github.com/zhiqian1027/zerovm/pkg/userspace"
	"github.com/zhiqian1027/zerovm/session"
)

// bufAddr is the guest buffer used by the I/O tests, on page zero.
const bufAddr = 64

func newIOSession(t *testing.T, descs ...*channel.Desc) (*session.Session, *Dispatcher) {
	t.Helper()
	space, err := userspace.New(4 * userspace.PageSize)
	if err != nil {
		t.Fatalf("userspace.New: %v", err)
	}
	s := session.New(1, channel.Table(descs), space)
	t.Cleanup(s.Terminate)
	return s, New(s, nil, nil)
}

func rndDesc(data string, limits [channel.LimitsCount]int64) *channel.Desc {
	return &channel.Desc{
		Alias:   "rnd",
		Type:    channel.RndGetRndPut,
		Size:    int64(len(data)),
		Backend: &channel.Mem{Data: []byte(data)},
		Limits:  limits,
	}
}

func seqDesc(data string, limits [channel.LimitsCount]int64) *channel.Desc {
	return &channel.Desc{
		Alias:   "seq",
		Type:    channel.SeqGetSeqPut,
		Backend: channel.Stream{R: strings.NewReader(data)},
		Limits:  limits,
	}
}

var wideLimits = [channel.LimitsCount]int64{16, 1 << 20, 16, 1 << 20}

func TestReadArgumentShape(t *testing.T) {
	tests := []struct {
		name   string
		ch     int64
		buffer uint64
		size   int32
		offset int64
		want   int32
	}{
		{"BadHandleNegative", -1, bufAddr, 4, 0, RetInval},
		{"BadHandlePastEnd", 1, bufAddr, 4, 0, RetInval},
		{"NegativeSize", 0, bufAddr, -1, 0, RetFault},
		{"NegativeOffset", 0, bufAddr, 4, -1, RetInval},
		{"ZeroSize", 0, bufAddr, 0, 0, 0},
		{"BufferOutOfRange", 0, 1 << 40, 4, 0, RetInval},
		{"BufferCrossesEnd", 0, 4*userspace.PageSize - 2, 4, 0, RetInval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newIOSession(t, rndDesc("0123456789", wideLimits))
			before := s.Channels[0].Counters
			if got := d.read(tt.ch, tt.buffer, tt.size, tt.offset); got != tt.want {
				t.Errorf("read = %d, want %d", got, tt.want)
			}
			if s.Channels[0].Counters != before {
				t.Error("rejected read mutated counters")
			}
		})
	}
}

func TestWriteArgumentShape(t *testing.T) {
	tests := []struct {
		name   string
		ch     int64
		buffer uint64
		size   int32
		offset int64
		want   int32
	}{
		{"BadHandle", 3, bufAddr, 4, 0, RetInval},
		{"NegativeSize", 0, bufAddr, -5, 0, RetFault},
		{"NegativeOffset", 0, bufAddr, 4, -2, RetInval},
		{"ZeroSize", 0, bufAddr, 0, 0, 0},
		{"BufferOutOfRange", 0, ^uint64(0) - 100, 4, 0, RetInval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newIOSession(t, rndDesc("0123456789", wideLimits))
			before := s.Channels[0].Counters
			if got := d.write(tt.ch, tt.buffer, tt.size, tt.offset); got != tt.want {
				t.Errorf("write = %d, want %d", got, tt.want)
			}
			if s.Channels[0].Counters != before {
				t.Error("rejected write mutated counters")
			}
		})
	}
}

func TestReadBufferPermission(t *testing.T) {
	s, d := newIOSession(t, rndDesc("0123456789", wideLimits))
	// make the buffer page read-only: read into it must be rejected
	ptr := s.Space.Translate(0)
	if err := s.Space.Protect(ptr, userspace.PageSize, userspace.ProtRead); err != nil {
		t.Fatalf("Protect: %v", err)
	}
	if got := d.read(0, bufAddr, 4, 0); got != RetInval {
		t.Errorf("read into read-only buffer = %d, want %d", got, RetInval)
	}
	// writing out of a read-only buffer is fine
	if got := d.write(0, bufAddr, 4, 0); got != 4 {
		t.Errorf("write from read-only buffer = %d, want 4", got)
	}
	if err := s.Space.Protect(ptr, userspace.PageSize, userspace.ProtRead|userspace.ProtWrite); err != nil {
		t.Fatalf("Protect restore: %v", err)
	}
}

func TestReadSequentialIgnoresOffset(t *testing.T) {
	s, d := newIOSession(t, seqDesc("abcdef", wideLimits))

	if got := d.read(0, bufAddr, 2, 999); got != 2 {
		t.Fatalf("read = %d, want 2", got)
	}
	buf := s.Space.Slice(s.Space.Translate(bufAddr), 2)
	if string(buf) != "ab" {
		t.Errorf("read %q, want %q", buf, "ab")
	}
	// second read continues at the cursor, whatever offset says
	if got := d.read(0, bufAddr, 2, 0); got != 2 {
		t.Fatalf("read = %d, want 2", got)
	}
	buf = s.Space.Slice(s.Space.Translate(bufAddr), 2)
	if string(buf) != "cd" {
		t.Errorf("read %q, want %q", buf, "cd")
	}
}

func TestReadRandomClamp(t *testing.T) {
	tests := []struct {
		name   string
		size   int32
		offset int64
		want   int32
	}{
		{"Inside", 4, 2, 4},
		{"ClampedToExtent", 8, 6, 4},
		{"AtExtent", 4, 10, 0},
		{"PastExtent", 4, 11, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newIOSession(t, rndDesc("0123456789", wideLimits))
			before := s.Channels[0].Counters
			if got := d.read(0, bufAddr, tt.size, tt.offset); got != tt.want {
				t.Errorf("read = %d, want %d", got, tt.want)
			}
			if tt.want == 0 && s.Channels[0].Counters != before {
				t.Error("empty read consumed quota")
			}
		})
	}
}

func TestReadEOF(t *testing.T) {
	s, d := newIOSession(t, rndDesc("0123456789", wideLimits))
	s.Channels[0].EOF = true
	before := s.Channels[0].Counters
	if got := d.read(0, bufAddr, 4, 0); got != 0 {
		t.Errorf("read after eof = %d, want 0", got)
	}
	if s.Channels[0].Counters != before {
		t.Error("eof read consumed quota")
	}
}

func TestReadOpQuota(t *testing.T) {
	// one read operation allowed in total
	limits := [channel.LimitsCount]int64{1, 1 << 20, 16, 1 << 20}
	s, d := newIOSession(t, rndDesc("0123456789", limits))

	if got := d.read(0, bufAddr, 10, 0); got != 10 {
		t.Fatalf("first read = %d, want 10", got)
	}
	if c := s.Channels[0].Counters[channel.GetsLimit]; c != 1 {
		t.Fatalf("read-op counter = %d, want 1", c)
	}
	before := s.Channels[0].Counters
	if got := d.read(0, bufAddr, 1, 0); got != RetQuota {
		t.Fatalf("second read = %d, want %d", got, RetQuota)
	}
	if s.Channels[0].Counters != before {
		t.Error("quota-rejected read touched channel state")
	}
}

func TestReadByteQuotaClamp(t *testing.T) {
	// 6 bytes of read budget in total
	limits := [channel.LimitsCount]int64{16, 6, 16, 1 << 20}
	s, d := newIOSession(t, rndDesc("0123456789", limits))

	if got := d.read(0, bufAddr, 10, 0); got != 6 {
		t.Fatalf("read = %d, want clamp to 6", got)
	}
	// budget exhausted now
	if got := d.read(0, bufAddr, 1, 6); got != RetQuota {
		t.Errorf("read past byte quota = %d, want %d", got, RetQuota)
	}
	_ = s
}

func TestWriteSequentialCursor(t *testing.T) {
	sink := &channel.Mem{}
	d0 := &channel.Desc{
		Alias:   "seqout",
		Type:    channel.SeqGetSeqPut,
		Backend: sink,
		Limits:  wideLimits,
	}
	s, d := newIOSession(t, d0)

	copy(s.Space.Slice(s.Space.Translate(bufAddr), 4), "abcd")
	if got := d.write(0, bufAddr, 4, 777); got != 4 {
		t.Fatalf("write = %d, want 4", got)
	}
	if got := d.write(0, bufAddr, 4, 0); got != 4 {
		t.Fatalf("write = %d, want 4", got)
	}
	// offsets ignored: both writes land back to back at the cursor
	if string(sink.Data) != "abcdabcd" {
		t.Errorf("sink = %q, want %q", sink.Data, "abcdabcd")
	}
	if d0.PutPos != 8 {
		t.Errorf("PutPos = %d, want 8", d0.PutPos)
	}
}

func TestWriteQuota(t *testing.T) {
	// extent 100, 50 bytes of write budget left
	mem := &channel.Mem{Data: make([]byte, 100)}
	d0 := &channel.Desc{
		Alias:   "rndout",
		Type:    channel.RndGetRndPut,
		Size:    100,
		Backend: mem,
		Limits:  [channel.LimitsCount]int64{16, 1 << 20, 16, 50},
	}
	s, d := newIOSession(t, d0)
	copy(s.Space.Slice(s.Space.Translate(bufAddr), 60), strings.Repeat("x", 60))

	if got := d.write(0, bufAddr, 60, 0); got != 50 {
		t.Fatalf("write = %d, want clamp to 50", got)
	}
	if d0.Counters[channel.PutSizeLimit] != 50 {
		t.Errorf("byte counter = %d, want 50", d0.Counters[channel.PutSizeLimit])
	}
	// budget exhausted: tail is 0 now
	if got := d.write(0, bufAddr, 1, 60); got != RetQuota {
		t.Errorf("write past byte quota = %d, want %d", got, RetQuota)
	}
}

func TestWriteOpQuota(t *testing.T) {
	limits := [channel.LimitsCount]int64{16, 1 << 20, 1, 1 << 20}
	s, d := newIOSession(t, rndDesc("0123456789", limits))

	if got := d.write(0, bufAddr, 2, 0); got != 2 {
		t.Fatalf("first write = %d, want 2", got)
	}
	before := s.Channels[0].Counters
	if got := d.write(0, bufAddr, 2, 2); got != RetQuota {
		t.Fatalf("second write = %d, want %d", got, RetQuota)
	}
	if s.Channels[0].Counters != before {
		t.Error("quota-rejected write touched channel state")
	}
}

func TestWriteRandomOffsetBounds(t *testing.T) {
	tests := []struct {
		name    string
		size    int64 // declared extent
		putSize int64 // byte quota limit
		used    int64 // bytes already written
		offset  int64
		want    int32
	}{
		// offset at or past the byte quota limit is rejected outright
		{"OffsetAtPutSizeLimit", 10, 50, 0, 50, RetInval},
		{"OffsetPastPutSizeLimit", 10, 50, 0, 60, RetInval},
		// offset past declared extent plus remaining budget
		{"OffsetPastExtentPlusTail", 10, 50, 45, 16, RetInval},
		// inside both bounds succeeds
		{"Inside", 10, 50, 0, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d0 := &channel.Desc{
				Alias:   "rndout",
				Type:    channel.RndGetRndPut,
				Size:    tt.size,
				Backend: &channel.Mem{Data: make([]byte, tt.size)},
				Limits:  [channel.LimitsCount]int64{16, 1 << 20, 16, tt.putSize},
			}
			d0.Counters[channel.PutSizeLimit] = tt.used
			_, d := newIOSession(t, d0)
			if got := d.write(0, bufAddr, 5, tt.offset); got != tt.want {
				t.Errorf("write = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadWriteThroughDispatch(t *testing.T) {
	s, d := newIOSession(t, rndDesc("0123456789", wideLimits))

	poke(s, vectorAddr, uint64(OpRead), 0, 0, bufAddr, 4, 2)
	if ret := d.Dispatch(vectorAddr); ret != 4 {
		t.Fatalf("dispatched read = %d, want 4", ret)
	}
	buf := s.Space.Slice(s.Space.Translate(bufAddr), 4)
	if string(buf) != "2345" {
		t.Errorf("buffer = %q, want %q", buf, "2345")
	}

	poke(s, vectorAddr, uint64(OpWrite), 0, 0, bufAddr, 4, 6)
	if ret := d.Dispatch(vectorAddr); ret != 4 {
		t.Fatalf("dispatched write = %d, want 4", ret)
	}
	mem := s.Channels[0].Backend.(*channel.Mem)
	if string(mem.Data) != "0123452345" {
		t.Errorf("channel data = %q, want %q", mem.Data, "0123452345")
	}
}
