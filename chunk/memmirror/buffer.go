// Package memmirror implements the unmanaged, fixed-capacity byte
// buffer backing a chunk's optional in-memory mirror. The buffer is
// owned exclusively by the mirror chunk that allocates it and is
// released exactly once; ownership never transfers. Access to its
// bytes goes through ReadAt/WriteAt and the views built on them, Stream
// (the writer's append-only view) and Handle (a reader pool's
// random-access view) — never by handing out the backing slice itself.
package memmirror

import (
	"fmt"
	"io"
	"sync"
)

// Buffer is a fixed-capacity, unmanaged region of memory sized once at
// allocation to hold a complete chunk image (header, data region,
// footer). "Unmanaged" here means allocated outside of normal Go-heap
// bookkeeping on platforms where that's available (see alloc_unix.go);
// elsewhere it falls back to a plain Go slice (see alloc_other.go),
// still honoring the same single-owner, explicit-release contract.
type Buffer struct {
	mu       sync.RWMutex
	data     []byte
	release  func() error
	released bool
}

func newBuffer(data []byte, release func() error) *Buffer {
	return &Buffer{data: data, release: release}
}

// Len returns the buffer's fixed capacity in bytes.
func (b *Buffer) Len() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// ReadAt implements io.ReaderAt semantics: it returns a non-nil error
// whenever it returns fewer bytes than requested.
func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if off < 0 || off > int64(len(b.data)) {
		return 0, fmt.Errorf("memmirror: read offset %d out of range [0,%d]", off, len(b.data))
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies p into the buffer starting at off. The write must fit
// within the fixed capacity; WriteAt never grows the buffer.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(b.data)) {
		return 0, fmt.Errorf("memmirror: write [%d,%d) exceeds capacity %d", off, off+int64(len(p)), len(b.data))
	}
	n := copy(b.data[off:], p)
	return n, nil
}

// Release returns the backing memory. Safe to call more than once;
// only the first call has effect.
func (b *Buffer) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil
	}
	b.released = true
	if b.release == nil {
		return nil
	}
	return b.release()
}

// Stream adapts a Buffer into the writer.Stream interface (Write,
// Seek, Sync, Truncate) for use as the append-only target of a
// mirrored chunk's WriterContext.
type Stream struct {
	buf *Buffer
	pos int64
}

// NewStream returns a Stream positioned at startPos.
func NewStream(buf *Buffer, startPos int64) *Stream {
	return &Stream{buf: buf, pos: startPos}
}

func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.buf.WriteAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = s.buf.Len()
	default:
		return 0, fmt.Errorf("memmirror: invalid whence %d", whence)
	}
	s.pos = base + offset
	return s.pos, nil
}

// Sync is a no-op: an unmanaged in-memory buffer has no secondary
// storage to flush to.
func (s *Stream) Sync() error { return nil }

// Truncate is a no-op: the mirror's capacity is fixed at allocation
// time and never shrinks. The file-backed chunk performs the real
// truncation that removes the unused tail left by variable-record mode.
func (s *Stream) Truncate(int64) error { return nil }

// Handle adapts a Buffer into the readerpool.Handle interface
// (Read, Seek, Close) with its own independent cursor, so that
// multiple concurrent readers can share one Buffer without
// interfering with each other's positions.
type Handle struct {
	buf *Buffer
	pos int64
}

// NewHandle returns a Handle with its own cursor over buf.
func NewHandle(buf *Buffer) *Handle {
	return &Handle{buf: buf}
}

func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.buf.ReadAt(p, h.pos)
	h.pos += int64(n)
	return n, err
}

func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = h.buf.Len()
	default:
		return 0, fmt.Errorf("memmirror: invalid whence %d", whence)
	}
	h.pos = base + offset
	return h.pos, nil
}

// Close is a no-op: the handle holds no resource of its own, only a
// cursor into the shared Buffer, which the mirror chunk owns and
// releases independently.
func (h *Handle) Close() error { return nil }
