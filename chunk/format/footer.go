package format

import (
	"encoding/binary"
	"fmt"
)

// FooterSize (F) is the fixed size in bytes of a ChunkFooter on disk.
// This constant must never change once chunks exist on disk.
const FooterSize = 16

var footerMagic = [4]byte{'C', 'N', 'K', 'F'}

// Footer is appended once, at completion, recording how many data
// bytes were actually committed (which may be less than the header's
// planned capacity in variable-record mode).
type Footer struct {
	ChunkDataTotalSize int64
}

// Encode serializes f into a FooterSize-byte, zero-padded buffer.
func (f Footer) Encode() []byte {
	buf := make([]byte, FooterSize)
	copy(buf[0:4], footerMagic[:])
	// buf[4:8] reserved, left zero.
	binary.LittleEndian.PutUint64(buf[8:16], uint64(f.ChunkDataTotalSize))
	return buf
}

// DecodeFooter parses a FooterSize-byte buffer produced by Encode.
func DecodeFooter(buf []byte) (Footer, error) {
	if len(buf) < FooterSize {
		return Footer{}, fmt.Errorf("format: short footer buffer: got %d want %d", len(buf), FooterSize)
	}
	if string(buf[0:4]) != string(footerMagic[:]) {
		return Footer{}, fmt.Errorf("format: bad footer magic %q", buf[0:4])
	}
	return Footer{
		ChunkDataTotalSize: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}, nil
}
