//go:build unix

package memmirror

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Allocate reserves an anonymous, zero-filled memory mapping of size n
// outside the Go heap's GC-scanned arenas. The mapping is anonymous
// rather than file-backed since the mirror has no backing file of its
// own.
func Allocate(n int64) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("memmirror: allocate requires n>0, got %d", n)
	}
	data, err := unix.Mmap(-1, 0, int(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("memmirror: mmap %d bytes: %w", n, err)
	}
	release := func() error {
		return unix.Munmap(data)
	}
	return newBuffer(data, release), nil
}
