// Package readerpool provides a bounded pool of seekable read handles
// shared among concurrent reader goroutines against a single chunk.
// It gives unbounded reader concurrency up to the pool's depth without
// opening a file (or allocating a cursor) per read.
package readerpool

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/flowbroker/chunkstore/internal/obslog"
)

// Handle is a single read-only cursor against a chunk's bytes, whether
// file-backed (an independent *os.File opened read-only) or
// memory-backed (a cursor over the shared unmanaged buffer).
type Handle interface {
	io.Reader
	io.Seeker
	io.Closer
}

// ErrPoolClosed is returned by Acquire once CloseAll has started
// draining the pool. Readers that observe it must not retry.
var ErrPoolClosed = errors.New("readerpool: pool closed")

// DrainTimeout bounds how long CloseAll waits to reclaim every issued
// handle before giving up. Outstanding handles are not force closed
// after the timeout; they are left for the OS to reclaim so that
// shutdown is never blocked indefinitely. This is a known, intentional
// leak on the timeout path.
const DrainTimeout = 30 * time.Second

// Pool is a bounded queue of Handles, sized once at construction via
// chunk_reader_count. Contention is bounded by the pool's depth.
type Pool struct {
	handles   chan Handle
	size      int
	done      chan struct{}
	closeOnce sync.Once
}

// New fills a pool of the given size by calling factory size times.
// If factory fails partway through, already-created handles are
// closed and the error is returned.
func New(size int, factory func() (Handle, error)) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("readerpool: size must be >= 1, got %d", size)
	}
	p := &Pool{
		handles: make(chan Handle, size),
		size:    size,
		done:    make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		h, err := factory()
		if err != nil {
			p.closeAvailable()
			return nil, fmt.Errorf("readerpool: create handle %d/%d: %w", i+1, size, err)
		}
		p.handles <- h
	}
	return p, nil
}

// Acquire blocks until a handle is available, or fails with
// ErrPoolClosed once the pool has been drained for shutdown.
func (p *Pool) Acquire() (Handle, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case h := <-p.handles:
		return h, nil
	case <-p.done:
		return nil, ErrPoolClosed
	}
}

// Release returns a handle to the pool for reuse. The channel's
// capacity equals the number of handles ever issued, so the send never
// blocks; if CloseAll is mid-drain it reclaims the handle from the
// channel as usual.
func (p *Pool) Release(h Handle) {
	p.handles <- h
}

// Size returns the pool's configured depth.
func (p *Pool) Size() int { return p.size }

func (p *Pool) closeAvailable() int {
	closed := 0
	for {
		select {
		case h := <-p.handles:
			if err := h.Close(); err != nil {
				obslog.Warn("readerpool: failed to close handle: %v", err)
			}
			closed++
		default:
			return closed
		}
	}
}

// CloseAll fails new Acquires, then drains and closes every handle.
// Handles acquired (in flight) at the moment CloseAll is called are
// reclaimed as they get released, up to DrainTimeout; if fewer handles
// than were issued come back within that window, CloseAll logs and
// returns anyway — any outstanding handle becomes the OS's problem to
// reclaim on process exit.
func (p *Pool) CloseAll() {
	p.closeOnce.Do(func() {
		close(p.done)
		deadline := time.Now().Add(DrainTimeout)
		closed := p.closeAvailable()
		for closed < p.size && time.Now().Before(deadline) {
			select {
			case h := <-p.handles:
				if err := h.Close(); err != nil {
					obslog.Warn("readerpool: failed to close handle: %v", err)
				}
				closed++
			case <-time.After(50 * time.Millisecond):
			}
		}
		if closed < p.size {
			obslog.Warn("readerpool: reclaimed only %d/%d handles after %s drain timeout; leaking the rest",
				closed, p.size, DrainTimeout)
		}
	})
}
