// Package chunkbuffer provides the bounded FIFO hand-off between the capture
// and the processing stages of a session.
package chunkbuffer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

var (
	// ErrDropped is returned by Put when the buffer stayed full for the whole
	// timeout and the chunk was discarded.
	ErrDropped = errors.New("the buffer is full, the chunk was dropped")

	// ErrClosed is returned by Get after Close once the remaining chunks were
	// drained, and by Put immediately after Close.
	ErrClosed = errors.New("the buffer is closed")
)

// Chunk is a fixed-duration slice of mono samples moving through the
// pipeline. It is owned by exactly one stage at a time and never mutated
// after production.
type Chunk struct {
	// Seq increases by one per produced chunk; a gap on the consumer side
	// means chunks were dropped.
	Seq        uint64
	Samples    []float64
	SampleRate audio.SampleRate
	// Offset is the position of the first sample within the stream.
	Offset time.Duration
}

func (c *Chunk) Duration() time.Duration {
	return c.SampleRate.DurationForSamples(len(c.Samples))
}

// Buffer is a bounded FIFO for exactly one producer and one consumer.
type Buffer struct {
	ch        chan *Chunk
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		ch:   make(chan *Chunk, capacity),
		done: make(chan struct{}),
	}
}

// Put hands a chunk to the consumer. When the buffer is full it blocks; with
// a positive timeout the chunk is dropped after that long (accounted in
// Dropped) and ErrDropped is returned.
func (b *Buffer) Put(ctx context.Context, c *Chunk, timeout time.Duration) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	select {
	case b.ch <- c:
		return nil
	default:
	}

	if timeout <= 0 {
		select {
		case b.ch <- c:
			return nil
		case <-b.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b.ch <- c:
		return nil
	case <-timer.C:
		b.dropped.Add(1)
		return ErrDropped
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the next chunk in production order. It blocks while the buffer
// is empty; a Close unblocks it with ErrClosed once the backlog is drained,
// and a context cancellation unblocks it immediately.
func (b *Buffer) Get(ctx context.Context) (*Chunk, error) {
	select {
	case c := <-b.ch:
		return c, nil
	default:
	}

	select {
	case c := <-b.ch:
		return c, nil
	case <-b.done:
		// Drain whatever was buffered before the close.
		select {
		case c := <-b.ch:
			return c, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops admission of new chunks. Buffered chunks remain readable.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Buffer) Len() int {
	return len(b.ch)
}
