package memmirror_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbroker/chunkstore/chunk/memmirror"
)

func TestAllocateAndRelease(t *testing.T) {
	t.Parallel()

	buf, err := memmirror.Allocate(128)
	require.NoError(t, err)
	assert.Equal(t, int64(128), buf.Len())

	require.NoError(t, buf.Release())
	assert.NoError(t, buf.Release(), "second release must be a no-op")

	_, err = memmirror.Allocate(0)
	assert.Error(t, err)
}

func TestWriteAtReadAt(t *testing.T) {
	t.Parallel()

	buf, err := memmirror.Allocate(32)
	require.NoError(t, err)
	t.Cleanup(func() { buf.Release() })

	_, err = buf.WriteAt([]byte("chunkdata"), 4)
	require.NoError(t, err)

	got := make([]byte, 9)
	n, err := buf.ReadAt(got, 4)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, []byte("chunkdata"), got)

	// A fixed-capacity buffer never grows.
	_, err = buf.WriteAt([]byte("overflow"), 30)
	assert.Error(t, err)

	_, err = buf.ReadAt(got, 33)
	assert.Error(t, err)
}

func TestStreamAppends(t *testing.T) {
	t.Parallel()

	buf, err := memmirror.Allocate(16)
	require.NoError(t, err)
	t.Cleanup(func() { buf.Release() })

	s := memmirror.NewStream(buf, 0)
	pos, err := s.Seek(4, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)

	n, err := s.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.NoError(t, s.Sync())
	assert.NoError(t, s.Truncate(8), "truncate is a no-op for the fixed-capacity buffer")

	got := make([]byte, 4)
	_, err = buf.ReadAt(got, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), got)
}

func TestHandlesKeepIndependentCursors(t *testing.T) {
	t.Parallel()

	buf, err := memmirror.Allocate(10)
	require.NoError(t, err)
	t.Cleanup(func() { buf.Release() })
	_, err = buf.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, err)

	h1 := memmirror.NewHandle(buf)
	h2 := memmirror.NewHandle(buf)

	_, err = h1.Seek(5, io.SeekStart)
	require.NoError(t, err)

	b1 := make([]byte, 2)
	b2 := make([]byte, 2)
	_, err = io.ReadFull(h1, b1)
	require.NoError(t, err)
	_, err = io.ReadFull(h2, b2)
	require.NoError(t, err)

	assert.Equal(t, []byte("56"), b1)
	assert.Equal(t, []byte("01"), b2, "a second handle's cursor must be unaffected")

	assert.NoError(t, h1.Close())
}
