// Package chunk implements the chunked append-only log file that is
// the storage primitive of the broker. A Chunk is one fixed-size file
// holding either variable-length length-prefixed-and-suffixed records
// or fixed-size records, optionally mirrored byte-for-byte into an
// in-memory twin that serves reads without touching the file.
package chunk

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/flowbroker/chunkstore/chunk/format"
	"github.com/flowbroker/chunkstore/chunk/memmirror"
	"github.com/flowbroker/chunkstore/chunk/readerpool"
	"github.com/flowbroker/chunkstore/chunk/writer"
	"github.com/flowbroker/chunkstore/internal/metrics"
	"github.com/flowbroker/chunkstore/internal/obslog"
	"github.com/flowbroker/chunkstore/internal/sysmem"
)

const copyBufferSize = 1 << 20

// Chunk is one append-only log file plus its in-process state: a
// bounded pool of read handles, a single writer context while the
// chunk is still being appended to, and optionally an in-memory twin
// that serves reads once the chunk is cached.
type Chunk struct {
	path       string
	cfg        Config
	header     format.Header
	chunkLabel string

	// isMemory marks the in-memory twin; it owns buf and never has a
	// mirror of its own.
	isMemory bool
	buf      *memmirror.Buffer

	// writeSync serialises append, flush, complete and close-while-writing.
	writeSync sync.Mutex
	wctx      *writer.Context
	wfile     *os.File

	// cacheSync serialises mirror attach/detach. Readers load the mirror
	// pointer without taking it.
	cacheSync         sync.Mutex
	mirror            atomic.Pointer[Chunk]
	cachingInProgress atomic.Int32

	readers *readerpool.Pool

	// dataPosition is written only under writeSync and read without
	// locking by readers; the atomic store is the publication point of a
	// committed record.
	dataPosition atomic.Int64
	footer       atomic.Pointer[format.Footer]
	completed    atomic.Bool
	deleting     atomic.Bool
	closed       atomic.Bool

	lastActiveUnixNano atomic.Int64

	mem sysmem.Info
}

func newChunk(path string, cfg Config, header format.Header, isMemory bool) *Chunk {
	c := &Chunk{
		path:       path,
		cfg:        cfg,
		header:     header,
		chunkLabel: strconv.FormatInt(header.ChunkNumber, 10),
		isMemory:   isMemory,
		mem:        sysmem.System{},
	}
	c.touch()
	return c
}

// CreateNew creates a brand-new chunk at path for the given chunk
// number. The file is fully written as a sibling {path}.{uuid}.tmp,
// flushed, closed, then atomically renamed into place, so a crash
// mid-creation never leaves a half-written chunk under the real name.
// The file is pre-allocated to header + data capacity + footer so that
// appends never grow it.
//
// With isMemory set the chunk lives entirely in an unmanaged buffer of
// the same layout; no file is touched.
func CreateNew(path string, chunkNumber int64, cfg Config, isMemory bool) (*Chunk, error) {
	header := format.Header{
		ChunkNumber:        chunkNumber,
		ChunkDataTotalSize: cfg.DataRegionSize(),
	}
	if isMemory {
		return createNewMemory(path, cfg, header)
	}
	return createNewFile(path, cfg, header)
}

func createNewFile(path string, cfg Config, header format.Header) (*Chunk, error) {
	tmp := fmt.Sprintf("%s.%s.tmp", path, uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("chunk: create temp file %s: %w", tmp, err)
	}
	if err := writeNewFile(f, header); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("chunk: close temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("chunk: rename %s into place: %w", tmp, err)
	}
	obslog.Info("chunk %d created at %s (%s data region)",
		header.ChunkNumber, path, humanize.IBytes(uint64(header.ChunkDataTotalSize)))
	return openForAppend(path, cfg, header, 0)
}

func writeNewFile(f *os.File, header format.Header) error {
	if _, err := f.Write(header.Encode()); err != nil {
		return fmt.Errorf("chunk: write header: %w", err)
	}
	size := int64(format.HeaderSize) + header.ChunkDataTotalSize + int64(format.FooterSize)
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("chunk: pre-allocate %d bytes: %w", size, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("chunk: sync new chunk file: %w", err)
	}
	return nil
}

func createNewMemory(path string, cfg Config, header format.Header) (*Chunk, error) {
	size := int64(format.HeaderSize) + header.ChunkDataTotalSize + int64(format.FooterSize)
	buf, err := memmirror.Allocate(size)
	if err != nil {
		return nil, err
	}
	if _, err := buf.WriteAt(header.Encode(), 0); err != nil {
		buf.Release()
		return nil, fmt.Errorf("chunk: write header to memory chunk: %w", err)
	}
	c, err := newMemoryChunk(path, cfg, header, buf, 0, true)
	if err != nil {
		buf.Release()
		return nil, err
	}
	return c, nil
}

// openForAppend opens the real file for writes with the append cursor
// placed just past dataPos bytes of committed data, and fills the
// reader pool with independent read-only handles on the same path.
func openForAppend(path string, cfg Config, header format.Header, dataPos int64) (*Chunk, error) {
	wf, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("chunk: open %s for append: %w", path, err)
	}
	pool, err := newFileReaderPool(path, cfg.ChunkReaderCount)
	if err != nil {
		wf.Close()
		return nil, err
	}
	c := newChunk(path, cfg, header, false)
	c.wfile = wf
	c.wctx = writer.New(wf, int64(format.HeaderSize)+dataPos)
	c.readers = pool
	c.dataPosition.Store(dataPos)
	return c, nil
}

// newMemoryChunk builds a memory-backed chunk over buf. When writable
// is set a writer context is attached with its cursor just past
// dataPos; otherwise the chunk is read-only (a mirror of a completed
// file).
func newMemoryChunk(path string, cfg Config, header format.Header, buf *memmirror.Buffer,
	dataPos int64, writable bool,
) (*Chunk, error) {
	pool, err := readerpool.New(cfg.ChunkReaderCount, func() (readerpool.Handle, error) {
		return memmirror.NewHandle(buf), nil
	})
	if err != nil {
		return nil, err
	}
	c := newChunk(path, cfg, header, true)
	c.buf = buf
	c.readers = pool
	c.dataPosition.Store(dataPos)
	if writable {
		c.wctx = writer.New(memmirror.NewStream(buf, 0), int64(format.HeaderSize)+dataPos)
	}
	return c, nil
}

func newFileReaderPool(path string, count int) (*readerpool.Pool, error) {
	return readerpool.New(count, func() (readerpool.Handle, error) {
		return os.OpenFile(path, os.O_RDONLY, 0)
	})
}

// FromCompletedFile opens a sealed chunk: header and footer are read
// and cross-checked against the file length before any read is served.
// With isMemory set the entire file is loaded into a freshly allocated
// unmanaged buffer and all reads are served from it.
func FromCompletedFile(path string, cfg Config, isMemory bool) (*Chunk, error) {
	f, err := openChunkFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, &CorruptDatabaseError{Path: path, Cause: err}
	}
	size := fi.Size()
	header, err := readHeader(f, path, size)
	if err != nil {
		return nil, err
	}
	footer, err := readFooter(f, path, size)
	if err != nil {
		return nil, err
	}
	if want := int64(format.HeaderSize) + footer.ChunkDataTotalSize + int64(format.FooterSize); size != want {
		return nil, badChunk(path, fmt.Sprintf("file length %d does not match footer: want %d", size, want))
	}
	if cfg.IsFixedMode() && footer.ChunkDataTotalSize != header.ChunkDataTotalSize {
		return nil, badChunk(path, fmt.Sprintf("fixed-record chunk sealed at %d of %d data bytes",
			footer.ChunkDataTotalSize, header.ChunkDataTotalSize))
	}
	dataPos := footer.ChunkDataTotalSize

	var c *Chunk
	if isMemory {
		buf, err := loadFileIntoBuffer(f, size)
		if err != nil {
			return nil, &CorruptDatabaseError{Path: path, Cause: err}
		}
		c, err = newMemoryChunk(path, cfg, header, buf, dataPos, false)
		if err != nil {
			buf.Release()
			return nil, err
		}
	} else {
		pool, err := newFileReaderPool(path, cfg.ChunkReaderCount)
		if err != nil {
			return nil, err
		}
		c = newChunk(path, cfg, header, false)
		c.readers = pool
		c.dataPosition.Store(dataPos)
	}
	c.footer.Store(&footer)
	c.completed.Store(true)
	return c, nil
}

// FromOngoingFile re-opens a chunk that was still being appended to
// when the process stopped. The data region is scanned record by
// record with guarded probes; the first probe that fails (bad length,
// prefix/suffix mismatch, nil record, short read) ends the scan and
// the position just past the last good record becomes the recovered
// data position. Trailing garbage is not truncated; the next append
// simply overwrites it.
func FromOngoingFile(path string, cfg Config, readRecord ReadRecordFunc, isMemory bool) (*Chunk, error) {
	f, err := openChunkFile(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &CorruptDatabaseError{Path: path, Cause: err}
	}
	size := fi.Size()
	header, err := readHeader(f, path, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	dataPos := scanOngoing(f, cfg, readRecord, scanLimit(size, header))
	obslog.Info("chunk %d reopened ongoing at %s: recovered data position %d",
		header.ChunkNumber, path, dataPos)

	if isMemory {
		c, err := ongoingMemoryChunk(f, path, cfg, header, dataPos)
		f.Close()
		return c, err
	}
	f.Close()
	return openForAppend(path, cfg, header, dataPos)
}

// scanLimit bounds the ongoing scan to the data region. A healthy
// pre-allocated file is header + capacity + footer space, so the limit
// lands exactly at the end of the data region; a file cut short by a
// crash is scanned to its actual length instead.
func scanLimit(fileSize int64, header format.Header) int64 {
	dataEnd := int64(format.HeaderSize) + header.ChunkDataTotalSize
	if fileSize > dataEnd {
		return dataEnd
	}
	return fileSize
}

func ongoingMemoryChunk(f *os.File, path string, cfg Config, header format.Header, dataPos int64) (*Chunk, error) {
	size := int64(format.HeaderSize) + header.ChunkDataTotalSize + int64(format.FooterSize)
	buf, err := memmirror.Allocate(size)
	if err != nil {
		return nil, err
	}
	if _, err := buf.WriteAt(header.Encode(), 0); err != nil {
		buf.Release()
		return nil, fmt.Errorf("chunk: write header to memory chunk: %w", err)
	}
	if err := copyFileRange(f, buf, int64(format.HeaderSize), dataPos); err != nil {
		buf.Release()
		return nil, &CorruptDatabaseError{Path: path, Cause: err}
	}
	c, err := newMemoryChunk(path, cfg, header, buf, dataPos, true)
	if err != nil {
		buf.Release()
		return nil, err
	}
	return c, nil
}

func openChunkFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &CorruptDatabaseError{Path: path, Cause: &ChunkFileNotExistError{Path: path}}
		}
		return nil, &CorruptDatabaseError{Path: path, Cause: err}
	}
	return f, nil
}

func badChunk(path, reason string) error {
	return &CorruptDatabaseError{Path: path, Cause: &BadChunkInDatabaseError{Path: path, Reason: reason}}
}

func readHeader(f *os.File, path string, size int64) (format.Header, error) {
	if size < format.HeaderSize {
		return format.Header{}, badChunk(path, fmt.Sprintf("file length %d is shorter than the %d-byte header",
			size, format.HeaderSize))
	}
	buf := make([]byte, format.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return format.Header{}, &CorruptDatabaseError{Path: path, Cause: err}
	}
	header, err := format.DecodeHeader(buf)
	if err != nil {
		return format.Header{}, badChunk(path, err.Error())
	}
	return header, nil
}

func readFooter(f *os.File, path string, size int64) (format.Footer, error) {
	if size < format.HeaderSize+format.FooterSize {
		return format.Footer{}, badChunk(path, fmt.Sprintf("file length %d is shorter than header plus footer", size))
	}
	buf := make([]byte, format.FooterSize)
	if _, err := f.ReadAt(buf, size-int64(format.FooterSize)); err != nil {
		return format.Footer{}, &CorruptDatabaseError{Path: path, Cause: err}
	}
	footer, err := format.DecodeFooter(buf)
	if err != nil {
		return format.Footer{}, badChunk(path, err.Error())
	}
	return footer, nil
}

func loadFileIntoBuffer(f *os.File, size int64) (*memmirror.Buffer, error) {
	buf, err := memmirror.Allocate(size)
	if err != nil {
		return nil, err
	}
	if err := copyFileRange(f, buf, 0, size); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// copyFileRange copies f's bytes [off, off+n) into buf at the same
// offset, preserving the byte-identical layout invariant between a
// file chunk and its memory twin.
func copyFileRange(f *os.File, buf *memmirror.Buffer, off, n int64) error {
	scratch := make([]byte, copyBufferSize)
	for n > 0 {
		want := int64(len(scratch))
		if n < want {
			want = n
		}
		read, err := f.ReadAt(scratch[:want], off)
		if err != nil && err != io.EOF {
			return fmt.Errorf("chunk: copy file bytes at %d: %w", off, err)
		}
		if int64(read) < want {
			return fmt.Errorf("chunk: copy file bytes at %d: short read %d of %d", off, read, want)
		}
		if _, err := buf.WriteAt(scratch[:want], off); err != nil {
			return err
		}
		off += want
		n -= want
	}
	return nil
}

// scanOngoing walks records from the start of the data region, probing
// one record at a time with the same framing rules reads use. Every
// probe is guarded: any failure ends the scan rather than propagating.
// Returns the recovered data position (bytes of good data past the
// header).
func scanOngoing(f *os.File, cfg Config, readRecord ReadRecordFunc, limit int64) int64 {
	pos := int64(format.HeaderSize)
	for {
		advance, ok := probeRecordAt(f, pos, limit, cfg, readRecord)
		if !ok {
			break
		}
		pos += advance
	}
	return pos - int64(format.HeaderSize)
}

func probeRecordAt(f *os.File, pos, limit int64, cfg Config, readRecord ReadRecordFunc) (int64, bool) {
	if _, err := f.Seek(pos, io.SeekStart); err != nil {
		return 0, false
	}
	if cfg.IsFixedMode() {
		unit := cfg.ChunkDataUnitSize
		if pos+unit > limit {
			return 0, false
		}
		if !consumeRecord(f, int(unit), readRecord) {
			return 0, false
		}
		return unit, true
	}
	if pos+format.LengthFieldSize > limit {
		return 0, false
	}
	length, err := format.ReadUint32LE(f)
	if err != nil || length == 0 || int(length) > cfg.MaxLogRecordSize {
		return 0, false
	}
	if pos+int64(length)+int64(format.VariableRecordOverhead) > limit {
		return 0, false
	}
	if !consumeRecord(f, int(length), readRecord) {
		return 0, false
	}
	suffix, err := format.ReadUint32LE(f)
	if err != nil || suffix != length {
		return 0, false
	}
	return int64(length) + int64(format.VariableRecordOverhead), true
}

// consumeRecord runs the caller's record factory over exactly length
// bytes, absorbing any panic so that a corrupt probe can never take
// down recovery.
func consumeRecord(r io.Reader, length int, readRecord ReadRecordFunc) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			ok = false
		}
	}()
	cr := &countingReader{r: io.LimitReader(r, int64(length))}
	rec, err := readRecord(length, cr)
	return err == nil && rec != nil && cr.n == int64(length)
}

// TryAppend frames record and appends it to the working stream. It
// returns NotEnoughSpace when the framed record does not fit in the
// remaining data-region capacity (callers roll to the next chunk), the
// record's global log position on success, and an error only for
// invariant breaks, after which the chunk must be considered unusable.
func (c *Chunk) TryAppend(record LogRecord) (RecordWriteResult, error) {
	if c.completed.Load() {
		return RecordWriteResult{}, &ChunkWriteError{
			ChunkNumber: c.header.ChunkNumber,
			Message:     "append to a completed (read-only) chunk",
		}
	}
	c.writeSync.Lock()
	defer c.writeSync.Unlock()
	if c.wctx == nil {
		return RecordWriteResult{}, &ChunkWriteError{
			ChunkNumber: c.header.ChunkNumber,
			Message:     "append to a chunk with no writer (closed or read-only)",
		}
	}

	dataEnd := int64(format.HeaderSize) + c.header.ChunkDataTotalSize
	prevDataPos := c.wctx.Cursor() - int64(format.HeaderSize)
	globalPos := c.header.DataStartPosition() + prevDataPos

	var framed []byte
	if c.cfg.IsFixedMode() {
		if c.wctx.Cursor()+c.cfg.ChunkDataUnitSize > dataEnd {
			return NotEnoughSpaceResult, nil
		}
		b := format.NewFixedFrameBuilder()
		if err := record.WriteTo(globalPos, b.Writer()); err != nil {
			return RecordWriteResult{}, c.writeErr("record serialization failed: %v", err)
		}
		var err error
		framed, err = b.Finish(int(c.cfg.ChunkDataUnitSize))
		if err != nil {
			return RecordWriteResult{}, c.writeErr("%v", err)
		}
	} else {
		b := format.NewVariableFrameBuilder()
		if err := record.WriteTo(globalPos, b.Writer()); err != nil {
			return RecordWriteResult{}, c.writeErr("record serialization failed: %v", err)
		}
		buf, recordLength, err := b.Finish(c.cfg.MaxLogRecordSize)
		if err != nil {
			return RecordWriteResult{}, c.writeErr("%v", err)
		}
		if c.wctx.Cursor()+int64(recordLength)+int64(format.VariableRecordOverhead) > dataEnd {
			return NotEnoughSpaceResult, nil
		}
		framed = buf
	}

	if _, err := c.wctx.AppendData(framed, 0, len(framed)); err != nil {
		return RecordWriteResult{}, c.writeErr("%v", err)
	}
	newDataPos := c.wctx.Cursor() - int64(format.HeaderSize)

	// Dual-write into the mirror, which must land the record at the
	// exact same logical position or the twins have diverged.
	if m := c.mirror.Load(); m != nil {
		res, err := m.TryAppend(record)
		switch {
		case err != nil:
			return RecordWriteResult{}, c.writeErr("memory mirror append failed: %v", err)
		case res.NotEnoughSpace:
			return RecordWriteResult{}, c.writeErr("memory mirror ran out of space at data position %d", prevDataPos)
		case res.Position != globalPos:
			return RecordWriteResult{}, c.writeErr("memory mirror wrote to position %d, file chunk to %d",
				res.Position, globalPos)
		}
	}

	c.dataPosition.Store(newDataPos)
	metrics.DataBytesWritten.WithLabelValues(c.chunkLabel).Add(float64(len(framed)))
	c.touch()
	return Success(globalPos), nil
}

func (c *Chunk) writeErr(formatStr string, args ...interface{}) error {
	return &ChunkWriteError{
		ChunkNumber: c.header.ChunkNumber,
		Message:     fmt.Sprintf(formatStr, args...),
	}
}

// TryReadAt reads the record whose frame starts at dataPos (a byte
// offset into the data region, excluding the header). Reads are served
// from the memory mirror whenever one is attached. Any inconsistency —
// out-of-range position, bad length, prefix/suffix mismatch, a record
// factory that returns nil or consumes the wrong number of bytes — is
// an InvalidReadError and must be treated as a corruption signal.
func (c *Chunk) TryReadAt(dataPos int64, readRecord ReadRecordFunc) (LogRecord, error) {
	if m := c.mirror.Load(); m != nil {
		return m.TryReadAt(dataPos, readRecord)
	}
	if c.deleting.Load() {
		return nil, c.invalidRead(dataPos, "chunk is being deleted")
	}

	// Opportunistic single-flight caching: a read of a completed file
	// chunk schedules a mirror attach in the background unless one is
	// already in flight.
	if !c.isMemory && c.completed.Load() && c.cachingInProgress.CompareAndSwap(0, 1) {
		go c.TryCacheInMemory()
	}

	h, err := c.readers.Acquire()
	if err != nil {
		return nil, c.invalidRead(dataPos, "reader pool drained for delete or close")
	}
	defer c.readers.Release(h)

	current := c.dataPosition.Load()
	if dataPos < 0 || dataPos >= current {
		return nil, c.invalidRead(dataPos, fmt.Sprintf("position outside committed range [0,%d)", current))
	}
	if _, err := h.Seek(int64(format.HeaderSize)+dataPos, io.SeekStart); err != nil {
		return nil, c.invalidRead(dataPos, fmt.Sprintf("seek failed: %v", err))
	}

	var rec LogRecord
	if c.cfg.IsFixedMode() {
		unit := c.cfg.ChunkDataUnitSize
		if dataPos+unit > current {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("fixed record would cross committed boundary %d", current))
		}
		cr := &countingReader{r: io.LimitReader(h, unit)}
		rec, err = readRecord(int(unit), cr)
		if err != nil {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("record factory failed: %v", err))
		}
		if rec == nil {
			return nil, c.invalidRead(dataPos, "record factory returned no record")
		}
		if cr.n != unit {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("record factory consumed %d of %d bytes", cr.n, unit))
		}
	} else {
		length, err := format.ReadUint32LE(h)
		if err != nil {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("read length prefix: %v", err))
		}
		if length == 0 || int(length) > c.cfg.MaxLogRecordSize {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("framed length %d outside (0,%d]", length, c.cfg.MaxLogRecordSize))
		}
		if dataPos+int64(length)+int64(format.VariableRecordOverhead) > current {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("record of length %d would cross committed boundary %d",
				length, current))
		}
		cr := &countingReader{r: io.LimitReader(h, int64(length))}
		rec, err = readRecord(int(length), cr)
		if err != nil {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("record factory failed: %v", err))
		}
		if rec == nil {
			return nil, c.invalidRead(dataPos, "record factory returned no record")
		}
		if cr.n != int64(length) {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("record factory consumed %d of %d bytes", cr.n, length))
		}
		suffix, err := format.ReadUint32LE(h)
		if err != nil {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("read length suffix: %v", err))
		}
		if suffix != length {
			return nil, c.invalidRead(dataPos, fmt.Sprintf("length prefix %d does not match suffix %d", length, suffix))
		}
	}

	c.touch()
	return rec, nil
}

func (c *Chunk) invalidRead(dataPos int64, reason string) error {
	return &InvalidReadError{
		ChunkNumber:  c.header.ChunkNumber,
		DataPosition: dataPos,
		Reason:       reason,
	}
}

// Flush durably syncs any buffered appends. A no-op once the chunk is
// completed or for a memory chunk.
func (c *Chunk) Flush() error {
	c.writeSync.Lock()
	defer c.writeSync.Unlock()
	if c.wctx == nil || c.completed.Load() {
		return nil
	}
	return c.wctx.FlushToDisk()
}

// Complete seals the chunk: the footer records the final data size,
// the file is synced and trimmed to its exact final length, the writer
// is disposed, and the file is marked read-only (best effort). In
// fixed-record mode the data region must be exactly full. Idempotent.
func (c *Chunk) Complete() error {
	c.writeSync.Lock()
	defer c.writeSync.Unlock()
	if c.completed.Load() {
		return nil
	}
	if c.wctx == nil {
		return c.writeErr("complete called on a chunk with no writer")
	}

	dataPos := c.wctx.Cursor() - int64(format.HeaderSize)
	if c.cfg.IsFixedMode() && dataPos != c.header.ChunkDataTotalSize {
		return &ChunkCompleteError{
			ChunkNumber:          c.header.ChunkNumber,
			DataPosition:         dataPos,
			ExpectedDataPosition: c.header.ChunkDataTotalSize,
		}
	}

	footer := format.Footer{ChunkDataTotalSize: dataPos}
	if _, err := c.wctx.AppendData(footer.Encode(), 0, format.FooterSize); err != nil {
		return c.writeErr("append footer: %v", err)
	}
	if err := c.wctx.FlushToDisk(); err != nil {
		return c.writeErr("flush at completion: %v", err)
	}
	c.footer.Store(&footer)
	c.completed.Store(true)

	if !c.isMemory {
		want := int64(format.HeaderSize) + dataPos + int64(format.FooterSize)
		if fi, err := os.Stat(c.path); err == nil && fi.Size() != want {
			if err := c.wctx.ResizeStream(want); err != nil {
				return c.writeErr("trim to final size %d: %v", want, err)
			}
		}
		c.disposeWriterLocked()
		if err := setReadOnlyAttrs(c.path); err != nil {
			obslog.Warn("chunk %d: could not mark %s read-only: %v", c.header.ChunkNumber, c.path, err)
		}
		obslog.Info("chunk %d completed at %s (%s data)",
			c.header.ChunkNumber, c.path, humanize.IBytes(uint64(dataPos)))
	} else {
		c.wctx = nil
	}

	if m := c.mirror.Load(); m != nil {
		if err := m.Complete(); err != nil {
			return err
		}
	}
	c.touch()
	return nil
}

func (c *Chunk) disposeWriterLocked() {
	if c.wfile != nil {
		if err := c.wfile.Close(); err != nil {
			obslog.Warn("chunk %d: close writer handle: %v", c.header.ChunkNumber, err)
		}
		c.wfile = nil
	}
	c.wctx = nil
}

// TryCacheInMemory attaches an in-memory twin of this completed file
// chunk so that subsequent reads never touch the file. Admission is
// bounded by message_chunk_cache_max_percent of physical memory unless
// force_cache_chunk is set. Failures are logged and swallowed; the
// chunk keeps serving reads from the file.
func (c *Chunk) TryCacheInMemory() {
	defer c.cachingInProgress.Store(0)
	c.cacheSync.Lock()
	defer c.cacheSync.Unlock()

	if c.isMemory || !c.completed.Load() || c.deleting.Load() || c.closed.Load() || c.mirror.Load() != nil {
		return
	}

	chunkBytes := int64(format.HeaderSize) + c.dataPosition.Load() + int64(format.FooterSize)
	if !c.cfg.ForceCacheChunk {
		chunkSizeMB := float64(chunkBytes) / (1 << 20)
		totalMB, err := c.mem.TotalPhysicalMB()
		if err != nil {
			obslog.Warn("chunk %d: cache admission skipped, memory stats unavailable: %v", c.header.ChunkNumber, err)
			return
		}
		usedPercent, err := c.mem.UsedPercent()
		if err != nil {
			obslog.Warn("chunk %d: cache admission skipped, memory stats unavailable: %v", c.header.ChunkNumber, err)
			return
		}
		metrics.MemoryUsedPercent.Set(usedPercent)
		usedMB := totalMB * usedPercent / 100
		budgetMB := totalMB * float64(c.cfg.MessageChunkCacheMaxPercent) / 100
		if usedMB+chunkSizeMB > budgetMB {
			metrics.CacheAdmissionDenied.Inc()
			obslog.Debug("chunk %d: not cached, %s would exceed %d%% memory budget (used %.1f%%)",
				c.header.ChunkNumber, humanize.IBytes(uint64(chunkBytes)),
				c.cfg.MessageChunkCacheMaxPercent, usedPercent)
			return
		}
	}

	m, err := FromCompletedFile(c.path, c.cfg, true)
	if err != nil {
		obslog.Warn("chunk %d: caching in memory failed: %v", c.header.ChunkNumber, err)
		return
	}
	c.mirror.Store(m)
	metrics.MirroredChunks.Inc()
	obslog.Info("chunk %d cached in memory (%s)", c.header.ChunkNumber, humanize.IBytes(uint64(chunkBytes)))
}

// UnCacheFromMemory detaches and disposes the memory twin, if any.
// Reads fall back to the file.
func (c *Chunk) UnCacheFromMemory() {
	c.cacheSync.Lock()
	defer c.cacheSync.Unlock()
	if c.isMemory || !c.completed.Load() {
		return
	}
	if m := c.mirror.Swap(nil); m != nil {
		m.Close()
		metrics.MirroredChunks.Dec()
		obslog.Info("chunk %d uncached from memory", c.header.ChunkNumber)
	}
}

// Delete removes a completed file chunk from disk. The reader pool is
// drained first (bounded by the pool's drain timeout), so in-flight
// reads either finish cleanly or fail on their next acquire; reads
// arriving after Delete fail immediately.
func (c *Chunk) Delete() error {
	if c.isMemory {
		return c.writeErr("delete called on a memory chunk")
	}
	if !c.completed.Load() {
		return c.writeErr("delete called on an incomplete chunk")
	}
	c.deleting.Store(true)
	c.UnCacheFromMemory()
	c.readers.CloseAll()
	if err := clearReadOnlyAttrs(c.path); err != nil {
		obslog.Warn("chunk %d: could not clear read-only attributes on %s: %v", c.header.ChunkNumber, c.path, err)
	}
	if err := os.Remove(c.path); err != nil {
		return fmt.Errorf("chunk: delete %s: %w", c.path, err)
	}
	obslog.Info("chunk %d deleted (%s)", c.header.ChunkNumber, c.path)
	return nil
}

// Close releases every resource the chunk holds: the writer (after a
// best-effort flush if the chunk was still being written), the reader
// pool, the mirror, and — for a memory chunk — the unmanaged buffer.
// Idempotent.
func (c *Chunk) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeSync.Lock()
	if c.wctx != nil && !c.completed.Load() {
		if err := c.wctx.FlushToDisk(); err != nil {
			obslog.Warn("chunk %d: flush on close: %v", c.header.ChunkNumber, err)
		}
	}
	c.disposeWriterLocked()
	c.writeSync.Unlock()

	if m := c.mirror.Swap(nil); m != nil {
		m.Close()
		metrics.MirroredChunks.Dec()
	}
	c.readers.CloseAll()
	if c.buf != nil {
		if err := c.buf.Release(); err != nil {
			obslog.Warn("chunk %d: release memory buffer: %v", c.header.ChunkNumber, err)
		}
	}
	return nil
}

func (c *Chunk) touch() {
	c.lastActiveUnixNano.Store(time.Now().UnixNano())
}

// Path returns the chunk's file path (retained for identity even by
// memory chunks, which never touch it).
func (c *Chunk) Path() string { return c.path }

// Header returns the decoded chunk header.
func (c *Chunk) Header() format.Header { return c.header }

// Footer returns the footer and true once the chunk is completed.
func (c *Chunk) Footer() (format.Footer, bool) {
	if f := c.footer.Load(); f != nil {
		return *f, true
	}
	return format.Footer{}, false
}

// DataPosition returns the bytes of committed data, excluding the header.
func (c *Chunk) DataPosition() int64 { return c.dataPosition.Load() }

// IsCompleted reports whether the chunk has been sealed with a footer.
func (c *Chunk) IsCompleted() bool { return c.completed.Load() }

// IsMemory reports whether this chunk lives in an unmanaged buffer
// rather than a file.
func (c *Chunk) IsMemory() bool { return c.isMemory }

// IsCached reports whether a memory mirror is currently attached.
func (c *Chunk) IsCached() bool { return c.mirror.Load() != nil }

// LastActiveTime returns the time of the last append, successful read
// or completion; before any of these, the time the chunk was created or
// opened.
func (c *Chunk) LastActiveTime() time.Time {
	return time.Unix(0, c.lastActiveUnixNano.Load())
}

// SetMemoryInfo overrides the memory statistics source consulted by
// cache admission. Intended for tests and dependency injection.
func (c *Chunk) SetMemoryInfo(info sysmem.Info) { c.mem = info }

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
