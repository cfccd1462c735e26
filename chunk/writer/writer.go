// Package writer implements the single-owner append position used
// while a chunk is open for writes. It holds no lock of its own; the
// chunk controller serializes all access under its write mutex.
package writer

import (
	"fmt"
	"io"
)

// Stream is the append-only seekable sink a Context writes into: either
// the real chunk file, or a fixed-length unmanaged buffer (the memory
// mirror) viewed as a stream.
type Stream interface {
	io.Writer
	io.Seeker
	// Sync durably flushes to secondary storage. It is a no-op for an
	// unmanaged in-memory buffer.
	Sync() error
	// Truncate resizes the underlying stream, used at completion to
	// discard any pre-allocated tail left over in variable-record mode.
	Truncate(size int64) error
}

// Context is the writer-side state for one chunk: its underlying
// stream and the current append cursor (bytes written so far,
// including the header — i.e. the stream's logical end-of-data
// offset).
type Context struct {
	stream Stream
	cursor int64
}

// New wraps stream, with the append cursor starting at startCursor
// (typically format.HeaderSize + recovered data_position).
func New(stream Stream, startCursor int64) *Context {
	return &Context{stream: stream, cursor: startCursor}
}

// Cursor returns the current absolute append offset.
func (c *Context) Cursor() int64 { return c.cursor }

// AppendData writes data[off:off+length] to the end of the working
// stream and advances the cursor. It returns the absolute offset the
// data was written at.
func (c *Context) AppendData(data []byte, off, length int) (int64, error) {
	if off < 0 || length < 0 || off+length > len(data) {
		return 0, fmt.Errorf("writer: invalid slice bounds off=%d length=%d len=%d", off, length, len(data))
	}
	if _, err := c.stream.Seek(c.cursor, io.SeekStart); err != nil {
		return 0, fmt.Errorf("writer: seek to append position %d: %w", c.cursor, err)
	}
	n, err := c.stream.Write(data[off : off+length])
	if err != nil {
		return 0, fmt.Errorf("writer: append %d bytes at %d: %w", length, c.cursor, err)
	}
	if n != length {
		return 0, fmt.Errorf("writer: short append: wrote %d of %d bytes", n, length)
	}
	start := c.cursor
	c.cursor += int64(n)
	return start, nil
}

// FlushToDisk durably syncs the stream. A no-op for memory streams.
func (c *Context) FlushToDisk() error {
	return c.stream.Sync()
}

// ResizeStream truncates the stream to exactly n bytes.
func (c *Context) ResizeStream(n int64) error {
	if err := c.stream.Truncate(n); err != nil {
		return fmt.Errorf("writer: truncate to %d bytes: %w", n, err)
	}
	return nil
}
