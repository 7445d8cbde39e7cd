//go:build linux

package seccomp

import (
	"testing"

	libseccomp "github.com/elastic/go-seccomp-bpf"
)

func TestPolicyDefaults(t *testing.T) {
	b := &Builder{}
	p := b.Policy()
	if p.DefaultAction != libseccomp.ActionKillProcess {
		t.Errorf("default action = %v, want kill", p.DefaultAction)
	}
	if len(p.Syscalls) != 1 {
		t.Fatalf("syscall groups = %d, want 1", len(p.Syscalls))
	}
	if len(p.Syscalls[0].Names) != len(DefaultAllow) {
		t.Errorf("allowed = %d names, want %d", len(p.Syscalls[0].Names), len(DefaultAllow))
	}
}

func TestPolicyExtraAllow(t *testing.T) {
	b := &Builder{Allow: []string{"nanosleep"}}
	p := b.Policy()
	names := p.Syscalls[0].Names
	if names[len(names)-1] != "nanosleep" {
		t.Errorf("extra syscall not appended, tail = %q", names[len(names)-1])
	}
}

func TestAssemble(t *testing.T) {
	b := &Builder{}
	insns, err := b.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(insns) == 0 {
		t.Error("assembled filter is empty")
	}
}

func TestAssembleRejectsUnknown(t *testing.T) {
	b := &Builder{Allow: []string{"not_a_syscall"}}
	if _, err := b.Assemble(); err == nil {
		t.Error("expected error for unknown syscall name")
	}
}
