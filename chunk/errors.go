package chunk

import (
	"fmt"
	"runtime"

	"github.com/flowbroker/chunkstore/internal/obslog"
)

// CorruptDatabaseError wraps failures encountered while opening a chunk
// file: a missing file or a file whose header/footer does not parse.
type CorruptDatabaseError struct {
	Path  string
	Cause error
}

func (e *CorruptDatabaseError) Error() string {
	return errReport("corrupt chunk database at %s: %v", e.Path, e.Cause)
}

func (e *CorruptDatabaseError) Unwrap() error { return e.Cause }

// ChunkFileNotExistError is a CorruptDatabaseError cause for a missing file.
type ChunkFileNotExistError struct {
	Path string
}

func (e *ChunkFileNotExistError) Error() string {
	return fmt.Sprintf("chunk file does not exist: %s", e.Path)
}

// BadChunkInDatabaseError is a CorruptDatabaseError cause for a file that
// is shorter than its header/footer, or whose recorded sizes are inconsistent.
type BadChunkInDatabaseError struct {
	Path   string
	Reason string
}

func (e *BadChunkInDatabaseError) Error() string {
	return fmt.Sprintf("bad chunk in database %s: %s", e.Path, e.Reason)
}

// ChunkWriteError reports an invariant violation discovered while
// appending to a chunk (fatal — the chunk is considered unusable afterward).
type ChunkWriteError struct {
	ChunkNumber int64
	Message     string
}

func (e *ChunkWriteError) Error() string {
	return errReport("chunk %d write error: %s", e.ChunkNumber, e.Message)
}

// ChunkCompleteError reports a fixed-mode total-size mismatch at completion.
type ChunkCompleteError struct {
	ChunkNumber          int64
	DataPosition         int64
	ExpectedDataPosition int64
}

func (e *ChunkCompleteError) Error() string {
	return errReport("chunk %d can not complete: data_position=%d expected=%d",
		e.ChunkNumber, e.DataPosition, e.ExpectedDataPosition)
}

// InvalidReadError reports any read-time inconsistency, or a read
// attempted during delete. It is never silently recovered from.
type InvalidReadError struct {
	ChunkNumber  int64
	DataPosition int64
	Reason       string
}

func (e *InvalidReadError) Error() string {
	return errReport("invalid read at chunk %d position %d: %s",
		e.ChunkNumber, e.DataPosition, e.Reason)
}

// errReport formats the message, logs it at Error level prefixed with
// the caller's file:line, and returns the formatted message without
// that prefix for use as an Error() value. It logs on every call.
func errReport(format string, args ...interface{}) string {
	loc := callerFileLine(2)
	msg := fmt.Sprintf(format, args...)
	obslog.Error("%s: %s", loc, msg)
	return msg
}

func callerFileLine(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
