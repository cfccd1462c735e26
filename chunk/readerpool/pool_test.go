package readerpool_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowbroker/chunkstore/chunk/readerpool"
)

// fakeHandle is a Handle over a shared byte slice that records whether
// it has been closed.
type fakeHandle struct {
	*bytes.Reader
	closed *atomic.Int32
}

func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

func newFakeFactory(closed *atomic.Int32) func() (readerpool.Handle, error) {
	data := []byte("0123456789")
	return func() (readerpool.Handle, error) {
		return &fakeHandle{Reader: bytes.NewReader(data), closed: closed}, nil
	}
}

func TestNewRejectsBadSize(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	_, err := readerpool.New(0, newFakeFactory(&closed))
	assert.Error(t, err)
}

func TestNewClosesHandlesOnFactoryFailure(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	calls := 0
	_, err := readerpool.New(3, func() (readerpool.Handle, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("boom")
		}
		return newFakeFactory(&closed)()
	})
	require.Error(t, err)
	assert.Equal(t, int32(2), closed.Load(), "handles created before the failure must be closed")
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	p, err := readerpool.New(2, newFakeFactory(&closed))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())

	h1, err := p.Acquire()
	require.NoError(t, err)
	h2, err := p.Acquire()
	require.NoError(t, err)

	// The pool is empty now; a third Acquire must block until a release.
	acquired := make(chan readerpool.Handle)
	go func() {
		h, err2 := p.Acquire()
		assert.NoError(t, err2)
		acquired <- h
	}()
	select {
	case <-acquired:
		t.Fatal("Acquire returned from an empty pool")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(h1)
	select {
	case h := <-acquired:
		p.Release(h)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not unblock after Release")
	}
	p.Release(h2)
}

func TestConcurrentReaders(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	p, err := readerpool.New(4, newFakeFactory(&closed))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err2 := p.Acquire()
			if !assert.NoError(t, err2) {
				return
			}
			defer p.Release(h)
			_, err2 = h.Seek(0, io.SeekStart)
			assert.NoError(t, err2)
			buf := make([]byte, 4)
			_, err2 = io.ReadFull(h, buf)
			assert.NoError(t, err2)
			assert.Equal(t, []byte("0123"), buf)
		}()
	}
	wg.Wait()
}

func TestCloseAllDrainsAndFailsAcquire(t *testing.T) {
	t.Parallel()

	var closed atomic.Int32
	p, err := readerpool.New(3, newFakeFactory(&closed))
	require.NoError(t, err)

	// One handle is in flight while CloseAll starts.
	h, err := p.Acquire()
	require.NoError(t, err)
	go func() {
		time.Sleep(50 * time.Millisecond)
		p.Release(h)
	}()

	p.CloseAll()
	assert.Equal(t, int32(3), closed.Load(), "all issued handles must be reclaimed and closed")

	_, err = p.Acquire()
	assert.ErrorIs(t, err, readerpool.ErrPoolClosed)
}
