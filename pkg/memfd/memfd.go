//go:build linux

// Package memfd duplicates content into sealed anonymous files. The
// daemon respawns itself from a sealed copy of its own binary so the
// child cannot be swapped underneath a running node.
package memfd

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

const createFlag = unix.MFD_CLOEXEC | unix.MFD_ALLOW_SEALING
const roSeal = unix.F_SEAL_SEAL | unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE

// Dup copies reader into a new sealed read-only memfd. Caller closes
// the returned file.
func Dup(name string, reader io.Reader) (*os.File, error) {
	fd, err := unix.MemfdCreate(name, createFlag)
	if err != nil {
		return nil, fmt.Errorf("memfd: memfd_create failed: %v", err)
	}
	file := os.NewFile(uintptr(fd), name)
	if file == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memfd: NewFile failed for %v", name)
	}
	if _, err = io.Copy(file, reader); err != nil {
		file.Close()
		return nil, fmt.Errorf("memfd: copy failed: %v", err)
	}
	if _, err = unix.FcntlInt(file.Fd(), unix.F_ADD_SEALS, roSeal); err != nil {
		file.Close()
		return nil, fmt.Errorf("memfd: seal failed: %v", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("memfd: seek failed: %v", err)
	}
	return file, nil
}

// SelfExec returns a sealed memfd holding the current executable.
func SelfExec(name string) (*os.File, error) {
	self, err := os.Open("/proc/self/exe")
	if err != nil {
		return nil, fmt.Errorf("memfd: failed to open self: %v", err)
	}
	defer self.Close()
	return Dup(name, self)
}
