package pipeline

import (
	"context"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
)

// OutputRouter fans processed chunks out to the configured sinks and the
// optional raw side-channel. A write failure disables the affected sink
// only; the router reports a fatal error only when no processed-output sink
// is left.
type OutputRouter struct {
	locker   sync.Mutex
	sinks    []*routedSink
	rawSink  *routedSink
	failures []SinkFailure
}

type routedSink struct {
	sink   Sink
	failed bool
}

func newOutputRouter(sinks []Sink, rawSink Sink) *OutputRouter {
	r := &OutputRouter{}
	for _, sink := range sinks {
		r.sinks = append(r.sinks, &routedSink{sink: sink})
	}
	if rawSink != nil {
		r.rawSink = &routedSink{sink: rawSink}
	}
	return r
}

// WriteProcessed forwards the chunk to every still-alive sink. It returns
// ErrAllSinksFailed once no sink is left. The locker is not held across the
// writes: a stream sink may block until its drop deadline and must not stall
// Failures or BytesWritten callers for that long.
func (r *OutputRouter) WriteProcessed(
	ctx context.Context,
	chunk *chunkbuffer.Chunk,
) error {
	r.locker.Lock()
	targets := make([]*routedSink, 0, len(r.sinks))
	for _, s := range r.sinks {
		if !s.failed {
			targets = append(targets, s)
		}
	}
	r.locker.Unlock()

	alive := 0
	for _, s := range targets {
		if err := s.sink.WriteChunk(ctx, chunk); err != nil {
			r.disable(ctx, s, err)
			continue
		}
		alive++
	}
	if alive == 0 {
		return ErrAllSinksFailed
	}
	return nil
}

// WriteRaw forwards the pre-suppression chunk to the raw side-channel,
// best effort.
func (r *OutputRouter) WriteRaw(
	ctx context.Context,
	chunk *chunkbuffer.Chunk,
) {
	r.locker.Lock()
	s := r.rawSink
	skip := s == nil || s.failed
	r.locker.Unlock()
	if skip {
		return
	}
	if err := s.sink.WriteChunk(ctx, chunk); err != nil {
		r.disable(ctx, s, err)
	}
}

// disable records the failure and releases the sink, once.
func (r *OutputRouter) disable(ctx context.Context, s *routedSink, err error) {
	r.locker.Lock()
	if s.failed {
		r.locker.Unlock()
		return
	}
	s.failed = true
	r.failures = append(r.failures, SinkFailure{Sink: s.sink.Name(), Err: err})
	r.locker.Unlock()

	logger.Errorf(ctx, "the '%s' sink failed: %v", s.sink.Name(), err)
	if closeErr := s.sink.Close(); closeErr != nil {
		logger.Warnf(ctx, "unable to close the failed '%s' sink: %v", s.sink.Name(), closeErr)
	}
}

func (r *OutputRouter) Failures() []SinkFailure {
	r.locker.Lock()
	defer r.locker.Unlock()
	return append([]SinkFailure(nil), r.failures...)
}

// BytesWritten reports the payload bytes written to the processed file
// sinks and to the raw side-channel. Failed sinks still count what they
// managed to write.
func (r *OutputRouter) BytesWritten() (processed uint64, raw uint64) {
	r.locker.Lock()
	defer r.locker.Unlock()
	for _, s := range r.sinks {
		processed += s.sink.BytesWritten()
	}
	if r.rawSink != nil {
		raw = r.rawSink.sink.BytesWritten()
	}
	return
}

// Close releases every still-alive sink.
func (r *OutputRouter) Close() error {
	r.locker.Lock()
	defer r.locker.Unlock()
	var result *multierror.Error
	for _, s := range r.sinks {
		if s.failed {
			continue
		}
		s.failed = true
		if err := s.sink.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if r.rawSink != nil && !r.rawSink.failed {
		r.rawSink.failed = true
		if err := r.rawSink.sink.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
