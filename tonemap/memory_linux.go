//go:build linux

package tonemap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Map implements Memory.
func (SystemMemory) Map(fd, size int) ([]byte, error) {
	b, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("tonemap: mmap fd %d: %w", fd, err)
	}
	return b, nil
}

// Unmap implements Memory.
func (SystemMemory) Unmap(b []byte) error { return unix.Munmap(b) }

// Alloc implements Memory.
func (SystemMemory) Alloc(name string, size int) (int, error) {
	fd, err := unix.MemfdCreate(name, unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return NoFd, fmt.Errorf("tonemap: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return NoFd, fmt.Errorf("tonemap: ftruncate memfd: %w", err)
	}
	return fd, nil
}

// Dup implements Memory.
func (SystemMemory) Dup(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

// Close implements Memory.
func (SystemMemory) Close(fd int) error { return unix.Close(fd) }
