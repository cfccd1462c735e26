package chunk

import "io"

// LogRecord is the opaque payload type chunks store. Callers supply
// their own implementation; the chunk subsystem only needs to be able
// to ask it to serialize itself.
type LogRecord interface {
	// WriteTo emits this record's payload bytes to w. globalPosition is
	// the logical address (chunk_data_start_position + data_position)
	// this record will occupy once the append commits, made available
	// in case the record's own encoding wants to embed it.
	WriteTo(globalPosition int64, w io.Writer) error
}

// ReadRecordFunc reconstructs a LogRecord from exactly `length` bytes
// (variable mode) or `unitSize` bytes (fixed mode) read from r. It must
// consume exactly that many bytes. Returning a nil Record (with a nil
// error) signals corruption and is treated the same as a non-nil error.
type ReadRecordFunc func(length int, r io.Reader) (LogRecord, error)

// RecordWriteResult is the outcome of TryAppend: either Success with
// the logical global position the record now occupies, or a sentinel
// NotEnoughSpace (not an error — callers are expected to roll the
// chunk and retry against a new one).
type RecordWriteResult struct {
	Position       int64
	NotEnoughSpace bool
}

// Success builds a successful RecordWriteResult.
func Success(position int64) RecordWriteResult {
	return RecordWriteResult{Position: position}
}

// NotEnoughSpaceResult is the non-exception "try the next chunk" result.
var NotEnoughSpaceResult = RecordWriteResult{NotEnoughSpace: true}
