// Command zerovm runs one sandboxed session: it builds the guest
// address space and channel table from a manifest, then replays a trap
// script against the dispatcher and reports the session outcome.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zhiqian1027/zerovm/channel"
	"github.com/zhiqian1027/zerovm/daemon"
	"github.com/zhiqian1027/zerovm/manifest"
	"github.com/zhiqian1027/zerovm/pkg/rlimit"
	"github.com/zhiqian1027/zerovm/pkg/userspace"
	"github.com/zhiqian1027/zerovm/pkg/ztrace"
	"github.com/zhiqian1027/zerovm/session"
	"github.com/zhiqian1027/zerovm/trap"
)

func main() {
	os.Exit(run())
}

func run() int {
	// spawned successors receive their configuration over the control
	// socket instead of flags
	cmd, err := daemon.Init()
	if err != nil {
		fmt.Fprintln(os.Stderr, "zerovm:", err)
		return 2
	}

	opt := parseOptions(cmd)

	logger := zap.NewNop()
	if opt.debug {
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, "zerovm:", err)
			return 2
		}
	}
	defer logger.Sync()
	trace := ztrace.New(logger)

	m, err := manifest.Load(opt.manifest)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zerovm:", err)
		return 2
	}
	table, err := m.BuildChannels()
	if err != nil {
		fmt.Fprintln(os.Stderr, "zerovm:", err)
		return 2
	}
	space, err := userspace.New(m.Memory)
	if err != nil {
		table.Close()
		fmt.Fprintln(os.Stderr, "zerovm:", err)
		return 2
	}

	node := m.Node
	if opt.node != 0 {
		node = opt.node
	}
	s := session.New(node, table, space)
	defer s.Terminate()

	if opt.daemonize {
		s.Spawner = &daemon.Daemon{
			Manifest: opt.manifest,
			RLimits: rlimit.RLimits{
				AddressSpace: uint64(m.Memory) * 4,
				DisableCore:  true,
			},
			Trace: trace,
		}
	}
	if opt.snapshot != "" {
		s.Saver = session.FileSaver{Path: opt.snapshot}
	}

	var v trap.Validator
	if opt.allowExec {
		v = trap.ValidatorFunc(func([]byte, uint64) bool { return true })
	}
	d := trap.New(s, v, trace)

	script := os.Stdin
	if opt.script != "" {
		f, err := os.Open(opt.script)
		if err != nil {
			fmt.Fprintln(os.Stderr, "zerovm:", err)
			return 2
		}
		defer f.Close()
		script = f
	}
	if err := replay(s, d, script, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "zerovm:", err)
		return 2
	}

	r := s.Report
	fmt.Printf("node %d: user %d host %d state %q\n",
		s.Node, r.UserCode, r.HostCode, r.State)

	// closing the channels ends the collector goroutines, then the
	// gathered log-sink bytes can be dumped
	s.Terminate()
	dumpCollected(table, os.Stdout)

	if r.State != session.StateOK {
		return 1
	}
	return int(r.UserCode) & 0xff
}

func dumpCollected(table channel.Table, out io.Writer) {
	for _, d := range table {
		pc, ok := d.Backend.(*channel.PipeCollector)
		if !ok {
			continue
		}
		<-pc.Done
		fmt.Fprintf(out, "channel %q collected %d bytes\n", d.Alias, pc.Buffer.Len())
		out.Write(pc.Buffer.Bytes())
	}
}

// replay feeds a trap script to the dispatcher line by line. Lines are
// either "poke <addr> <hexbytes>" or "<op> [arg...]"; the vector for an
// op line is staged in the last guest page. Replay stops when the
// session terminates.
func replay(s *session.Session, d *trap.Dispatcher, in io.Reader, out io.Writer) error {
	vectorAddr := uint64(s.Space.Size()) - userspace.PageSize

	sc := bufio.NewScanner(in)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if s.Terminated() {
			return fmt.Errorf("script line %d: session already terminated", line)
		}
		if fields[0] == "poke" {
			if err := poke(s, fields[1:]); err != nil {
				return fmt.Errorf("script line %d: %v", line, err)
			}
			continue
		}
		op, args, err := parseTrap(fields)
		if err != nil {
			return fmt.Errorf("script line %d: %v", line, err)
		}
		if err := stage(s, vectorAddr, op, args); err != nil {
			return fmt.Errorf("script line %d: %v", line, err)
		}
		ret := d.Dispatch(vectorAddr)
		fmt.Fprintf(out, "%v = %d\n", op, ret)
	}
	return sc.Err()
}

func poke(s *session.Session, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("poke wants <addr> <hexbytes>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}
	b, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("bad hex %q: %v", args[1], err)
	}
	sys := s.Space.Translate(addr)
	if !s.Space.CheckRange(sys, int64(len(b)), userspace.ProtWrite) {
		return fmt.Errorf("poke range %#x+%d not writable guest memory", addr, len(b))
	}
	copy(s.Space.Slice(sys, int64(len(b))), b)
	return nil
}

// stage writes the argument vector into guest memory. The staging page
// may have lost write access to an earlier prot line, so the range is
// re-checked before every write.
func stage(s *session.Session, addr uint64, op trap.Op, args [4]uint64) error {
	sys := s.Space.Translate(addr)
	if !s.Space.CheckRange(sys, 48, userspace.ProtWrite) {
		return fmt.Errorf("staging page %#x not writable", addr)
	}
	v := s.Space.Slice(sys, 48)
	putWord(v[0:], uint64(op))
	putWord(v[8:], 0)
	for i, a := range args {
		putWord(v[16+8*i:], a)
	}
	return nil
}

func putWord(b []byte, w uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(w >> (8 * i))
	}
}

var opNames = map[string]trap.Op{
	"fork":  trap.OpFork,
	"exit":  trap.OpExit,
	"read":  trap.OpRead,
	"write": trap.OpWrite,
	"prot":  trap.OpProt,
	"test":  trap.OpTest,
}

func parseTrap(fields []string) (trap.Op, [4]uint64, error) {
	var args [4]uint64
	op, ok := opNames[strings.ToLower(fields[0])]
	if !ok {
		n, err := strconv.ParseUint(fields[0], 0, 64)
		if err != nil {
			return 0, args, fmt.Errorf("unknown operation %q", fields[0])
		}
		op = trap.Op(n)
	}
	if len(fields) > 5 {
		return 0, args, fmt.Errorf("too many arguments for %v", op)
	}
	for i, f := range fields[1:] {
		w, err := parseWord(f)
		if err != nil {
			return 0, args, err
		}
		args[i] = w
	}
	return op, args, nil
}

// parseWord accepts decimal, hex with 0x prefix and negative values,
// which wrap the way the guest would pass them.
func parseWord(s string) (uint64, error) {
	if strings.HasPrefix(s, "-") {
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad number %q: %v", s, err)
		}
		return uint64(n), nil
	}
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %v", s, err)
	}
	return n, nil
}
