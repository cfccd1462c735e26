// Package format implements the bit-exact on-disk codecs for chunk
// headers, footers, and record framing. Every layout here is
// little-endian and fixed width by construction (encoding/binary over
// a fixed-size byte array), so it is stable across processes, restarts,
// and machine architectures.
package format

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize (H) is the fixed size in bytes of a ChunkHeader on disk.
// This constant must never change once chunks exist on disk.
const HeaderSize = 32

var headerMagic = [4]byte{'C', 'N', 'K', 'H'}

const headerVersion uint32 = 1

// Header is the fixed-width record written at offset 0 of every chunk
// file: chunk number (the caller-assigned monotonic identifier) and the
// planned size of the data region that follows it.
type Header struct {
	ChunkNumber        int64
	ChunkDataTotalSize int64
}

// DataStartPosition returns this chunk's offset in the logical global
// log address space: chunk_number * chunk_data_total_size.
func (h Header) DataStartPosition() int64 {
	return h.ChunkNumber * h.ChunkDataTotalSize
}

// DataEndPosition returns the exclusive end of this chunk's logical
// address range.
func (h Header) DataEndPosition() int64 {
	return h.DataStartPosition() + h.ChunkDataTotalSize
}

// Encode serializes h into a HeaderSize-byte, zero-padded buffer.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], headerMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], headerVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.ChunkNumber))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.ChunkDataTotalSize))
	// buf[24:32] is reserved, left zero.
	return buf
}

// DecodeHeader parses a HeaderSize-byte buffer produced by Encode.
// It returns an error if the buffer is too short or the magic tag does
// not match — both are corruption signals per spec.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("format: short header buffer: got %d want %d", len(buf), HeaderSize)
	}
	if string(buf[0:4]) != string(headerMagic[:]) {
		return Header{}, fmt.Errorf("format: bad header magic %q", buf[0:4])
	}
	return Header{
		ChunkNumber:        int64(binary.LittleEndian.Uint64(buf[8:16])),
		ChunkDataTotalSize: int64(binary.LittleEndian.Uint64(buf[16:24])),
	}, nil
}
