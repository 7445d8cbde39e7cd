// Package seccomp builds and installs the syscall policy for a spawned
// node. Everything outside the allow list kills the process; the trap
// boundary is the only intended way out of the sandbox.
package seccomp

import (
	"fmt"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// DefaultAllow is the safe syscall set a node needs to run: fd I/O on
// inherited descriptors, memory management and clean exit. No open, no
// exec, no fork.
var DefaultAllow = []string{
	// file access through fd
	"read",
	"write",
	"readv",
	"writev",
	"close",
	"fstat",
	"lseek",
	"pread64",
	"pwrite64",
	"fcntl",

	// memory action
	"mmap",
	"mprotect",
	"munmap",
	"brk",
	"madvise",

	// signal action
	"rt_sigaction",
	"rt_sigprocmask",
	"rt_sigreturn",
	"sigaltstack",

	// process exit
	"exit",
	"exit_group",

	// others
	"arch_prctl",
	"clock_gettime",
	"futex",
	"gettid",
	"getpid",
	"getrandom",
	"restart_syscall",
	"set_tid_address",
	"set_robust_list",
	"rseq",
}

// Builder constructs the policy for one node.
type Builder struct {
	// Allow extends DefaultAllow; empty means the default set only
	Allow []string
}

// Policy returns the kill-by-default policy with the allowed syscalls.
func (b *Builder) Policy() libseccomp.Policy {
	names := make([]string, 0, len(DefaultAllow)+len(b.Allow))
	names = append(names, DefaultAllow...)
	names = append(names, b.Allow...)
	return libseccomp.Policy{
		DefaultAction: libseccomp.ActionKillProcess,
		Syscalls: []libseccomp.SyscallGroup{
			{
				Action: libseccomp.ActionAllow,
				Names:  names,
			},
		},
	}
}

// Assemble compiles the policy to BPF instructions without touching the
// kernel. Used to validate a policy before spawning.
func (b *Builder) Assemble() ([]bpf.Instruction, error) {
	p := b.Policy()
	insns, err := p.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: failed to assemble policy: %v", err)
	}
	return insns, nil
}

// Load installs the filter into the current process. Irreversible; the
// daemon child calls this right before handing control to the node.
func (b *Builder) Load() error {
	filter := libseccomp.Filter{
		NoNewPrivs: true,
		Flag:       libseccomp.FilterFlagTSync,
		Policy:     b.Policy(),
	}
	if err := libseccomp.LoadFilter(filter); err != nil {
		return fmt.Errorf("seccomp: failed to load filter: %v", err)
	}
	return nil
}
