package writer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbroker/chunkstore/chunk/writer"
)

func tempStream(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "stream"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAppendDataAdvancesCursor(t *testing.T) {
	t.Parallel()

	f := tempStream(t)
	c := writer.New(f, 0)

	off, err := c.AppendData([]byte("hello world"), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)
	assert.Equal(t, int64(5), c.Cursor())

	off, err = c.AppendData([]byte("hello world"), 6, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)
	assert.Equal(t, int64(10), c.Cursor())

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte("helloworld"), got)
}

func TestStartCursorOffsetsAppends(t *testing.T) {
	t.Parallel()

	f := tempStream(t)
	require.NoError(t, f.Truncate(8))

	c := writer.New(f, 8)
	_, err := c.AppendData([]byte("data"), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.Cursor())

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got[8:])
}

func TestAppendDataRejectsBadBounds(t *testing.T) {
	t.Parallel()

	f := tempStream(t)
	c := writer.New(f, 0)

	tests := map[string]struct {
		off, length int
	}{
		"ng/ negative offset":       {off: -1, length: 1},
		"ng/ negative length":       {off: 0, length: -1},
		"ng/ range past buffer end": {off: 2, length: 3},
	}
	for name := range tests {
		tt := tests[name]
		t.Run(name, func(t *testing.T) {
			_, err := c.AppendData([]byte("abcd"), tt.off, tt.length)
			assert.Error(t, err)
		})
	}
}

func TestFlushAndResize(t *testing.T) {
	t.Parallel()

	f := tempStream(t)
	c := writer.New(f, 0)

	_, err := c.AppendData(make([]byte, 100), 0, 100)
	require.NoError(t, err)
	require.NoError(t, c.FlushToDisk())

	require.NoError(t, c.ResizeStream(64))
	fi, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(64), fi.Size())
}
