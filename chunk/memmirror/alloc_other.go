//go:build !unix

package memmirror

import "fmt"

// Allocate falls back to a plain Go-heap slice on platforms without an
// anonymous mmap syscall in golang.org/x/sys/unix (notably Windows).
// The ownership and single-release contract are identical; only the
// "outside the GC-scanned heap" property is lost.
func Allocate(n int64) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("memmirror: allocate requires n>0, got %d", n)
	}
	data := make([]byte, n)
	return newBuffer(data, nil), nil
}
