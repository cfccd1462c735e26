package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// LengthFieldSize is the width of the prefix/suffix length fields that
// frame a variable-length record.
const LengthFieldSize = 4

// VariableRecordOverhead is the number of bytes a variable-length record
// costs beyond its payload: a 4-byte length prefix and a matching
// 4-byte length suffix.
const VariableRecordOverhead = 2 * LengthFieldSize

// WriteUint32LE writes v to w as 4 little-endian bytes.
func WriteUint32LE(w io.Writer, v uint32) error {
	var b [LengthFieldSize]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint32LE reads 4 little-endian bytes from r.
func ReadUint32LE(r io.Reader) (uint32, error) {
	var b [LengthFieldSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// VariableFrameBuilder assembles the on-disk frame for one
// variable-length record: a 4-byte length prefix, the record's payload
// bytes (written by the caller through Writer()), and a matching
// 4-byte length suffix. The prefix slot is reserved up front and
// patched in once the payload length is known.
type VariableFrameBuilder struct {
	buf bytes.Buffer
}

// NewVariableFrameBuilder reserves the 4-byte prefix slot and returns a
// builder ready to receive payload bytes.
func NewVariableFrameBuilder() *VariableFrameBuilder {
	b := &VariableFrameBuilder{}
	b.buf.Write(make([]byte, LengthFieldSize))
	return b
}

// Writer returns the io.Writer that the record's write_to implementation
// should write its payload bytes into.
func (b *VariableFrameBuilder) Writer() io.Writer { return &b.buf }

// Finish computes the record length, rejects it if it exceeds maxLen,
// appends the suffix, patches the prefix, and returns the complete
// framed buffer (length LengthFieldSize+recordLength+LengthFieldSize)
// along with the bare record length.
func (b *VariableFrameBuilder) Finish(maxLen int) (framed []byte, recordLength int, err error) {
	recordLength = b.buf.Len() - LengthFieldSize
	if recordLength <= 0 {
		return nil, 0, fmt.Errorf("format: empty record")
	}
	if recordLength > maxLen {
		return nil, 0, fmt.Errorf("format: record length %d exceeds max_log_record_size %d", recordLength, maxLen)
	}
	if err := WriteUint32LE(&b.buf, uint32(recordLength)); err != nil {
		return nil, 0, err
	}
	out := b.buf.Bytes()
	binary.LittleEndian.PutUint32(out[0:LengthFieldSize], uint32(recordLength))
	return out, recordLength, nil
}

// FixedFrameBuilder assembles the on-disk frame for one fixed-size
// record: exactly unit_size bytes, no prefix or suffix.
type FixedFrameBuilder struct {
	buf bytes.Buffer
}

// NewFixedFrameBuilder returns a builder ready to receive payload bytes.
func NewFixedFrameBuilder() *FixedFrameBuilder { return &FixedFrameBuilder{} }

// Writer returns the io.Writer the record's write_to implementation
// should write its payload bytes into.
func (b *FixedFrameBuilder) Writer() io.Writer { return &b.buf }

// Finish validates that exactly unitSize bytes were written and returns
// them.
func (b *FixedFrameBuilder) Finish(unitSize int) ([]byte, error) {
	if b.buf.Len() != unitSize {
		return nil, fmt.Errorf("format: fixed record framed to %d bytes, want %d", b.buf.Len(), unitSize)
	}
	return b.buf.Bytes(), nil
}
