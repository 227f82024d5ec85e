package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
)

// blockedSink parks every write on a gate channel.
type blockedSink struct {
	name    string
	started chan struct{}
	gate    chan struct{}
}

func (s *blockedSink) Name() string {
	return s.name
}

func (s *blockedSink) WriteChunk(ctx context.Context, chunk *chunkbuffer.Chunk) error {
	close(s.started)
	<-s.gate
	return nil
}

func (s *blockedSink) BytesWritten() uint64 {
	return 0
}

func (s *blockedSink) Close() error {
	return nil
}

func TestOutputRouter(t *testing.T) {
	ctx := context.Background()
	chunk := &chunkbuffer.Chunk{Samples: []float64{0}, SampleRate: 1000}

	t.Run("raw failure does not affect processed sinks", func(t *testing.T) {
		main := &fakeSink{name: "file", failAfter: -1}
		raw := &fakeSink{name: "raw", failAfter: 1}
		r := newOutputRouter([]Sink{main}, raw)

		for i := 0; i < 3; i++ {
			r.WriteRaw(ctx, chunk)
			require.NoError(t, r.WriteProcessed(ctx, chunk))
		}
		assert.Len(t, main.chunks, 3)
		assert.Len(t, raw.chunks, 1)
		assert.True(t, raw.closed)

		failures := r.Failures()
		require.Len(t, failures, 1)
		assert.Equal(t, "raw", failures[0].Sink)
	})

	t.Run("close releases the alive sinks once", func(t *testing.T) {
		a := &fakeSink{name: "a", failAfter: -1}
		b := &fakeSink{name: "b", failAfter: -1}
		r := newOutputRouter([]Sink{a, b}, nil)
		require.NoError(t, r.Close())
		assert.True(t, a.closed)
		assert.True(t, b.closed)
		require.NoError(t, r.Close())
	})

	t.Run("a blocked sink write does not hold the router lock", func(t *testing.T) {
		slow := &blockedSink{
			name:    "stream",
			started: make(chan struct{}),
			gate:    make(chan struct{}),
		}
		r := newOutputRouter([]Sink{slow}, nil)

		writeDone := make(chan error, 1)
		go func() {
			writeDone <- r.WriteProcessed(ctx, chunk)
		}()
		<-slow.started

		failuresDone := make(chan struct{})
		go func() {
			defer close(failuresDone)
			r.Failures()
		}()
		select {
		case <-failuresDone:
		case <-time.After(time.Second):
			t.Fatal("Failures blocked behind a slow sink write")
		}

		close(slow.gate)
		require.NoError(t, <-writeDone)
	})

	t.Run("bytes written include failed sinks", func(t *testing.T) {
		a := &fakeSink{name: "a", failAfter: 2}
		b := &fakeSink{name: "b", failAfter: -1}
		r := newOutputRouter([]Sink{a, b}, nil)
		for i := 0; i < 4; i++ {
			require.NoError(t, r.WriteProcessed(ctx, chunk))
		}
		processed, raw := r.BytesWritten()
		assert.EqualValues(t, 2+4, processed)
		assert.Zero(t, raw)
	})
}
