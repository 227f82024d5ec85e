// Package pipeline orchestrates one noise-reduction session: capture,
// profiling, suppression and output fan-out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
	"github.com/xaionaro-go/noiseprofile/pkg/codec"
	"github.com/xaionaro-go/noiseprofile/pkg/noisesuppression"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
	"github.com/xaionaro-go/observability"
)

type Pipeline struct {
	cfg    Config
	source Source
	supp   noisesuppression.NoiseSuppression
	loader codec.Codec
}

// New validates the configuration and binds the collaborators. The loader
// is only needed for the External profile method and may be nil otherwise.
func New(
	cfg Config,
	source Source,
	supp noisesuppression.NoiseSuppression,
	loader codec.Codec,
) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if source == nil {
		return nil, fmt.Errorf("the capture source is not set")
	}
	if supp == nil {
		return nil, fmt.Errorf("the noise suppression is not set")
	}
	return &Pipeline{
		cfg:    cfg,
		source: source,
		supp:   supp,
		loader: loader,
	}, nil
}

// Start opens the sinks and spawns the capture and the processing workers.
// The returned session reports progress and the final Result; the pipeline
// owns the source and the sinks from here on and releases them on every
// exit path.
func (p *Pipeline) Start(ctx context.Context) (_ *Session, _err error) {
	logger.Tracef(ctx, "Start")
	defer func() { logger.Tracef(ctx, "/Start: %v", _err) }()

	sess := newSession(p.cfg)
	router, err := p.openRouter(sess)
	if err != nil {
		return nil, err
	}

	sess.setState(StateProfiling)
	logger.Debugf(ctx, "session %s: %s", sess.ID, sess.State())

	captureCtx, captureCancel := context.WithCancel(ctx)
	observability.Go(ctx, func() {
		select {
		case <-sess.stop.Watch():
			captureCancel()
		case <-ctx.Done():
		}
	})

	captureDone := make(chan struct{})
	observability.Go(captureCtx, func() {
		defer close(captureDone)
		p.captureLoop(captureCtx, sess)
	})
	observability.Go(ctx, func() {
		defer captureCancel()
		err := p.processLoop(ctx, sess, router)
		sess.Stop()
		<-captureDone
		if err == nil {
			err = sess.captureErr
		}
		p.finalize(ctx, sess, router, err)
	})
	return sess, nil
}

func (p *Pipeline) openRouter(sess *Session) (*OutputRouter, error) {
	var sinks []Sink
	if p.cfg.OutputMode.HasFile() {
		sink, err := newFileSink("file", p.cfg.OutputPath, p.cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if p.cfg.OutputMode.HasStream() {
		timeout := p.cfg.PutTimeout
		if timeout <= 0 {
			// an undrained playback queue must not stall the processing loop
			timeout = 2 * p.cfg.ChunkDuration
		}
		sinks = append(sinks, newStreamSink("stream", sess.output, timeout))
	}
	var rawSink Sink
	if p.cfg.SaveRaw {
		sink, err := newFileSink("raw", p.cfg.RawOutputPath(), p.cfg.SampleRate)
		if err != nil {
			for _, s := range sinks {
				s.Close()
			}
			return nil, err
		}
		rawSink = sink
	}
	return newOutputRouter(sinks, rawSink), nil
}

func (p *Pipeline) captureLoop(ctx context.Context, sess *Session) {
	logger.Tracef(ctx, "captureLoop")
	defer logger.Tracef(ctx, "/captureLoop")
	defer sess.input.Close()
	defer func() {
		if !sess.compareAndSetState(StateProfiling, StateDraining) {
			sess.compareAndSetState(StateRunning, StateDraining)
		}
	}()

	var (
		seq    uint64
		offset time.Duration
	)
	for {
		if sess.stop.IsBroken() {
			return
		}
		samples, err := p.source.ReadChunk(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return
		default:
			sess.captureErr = fmt.Errorf("unable to read from the capture source: %w", err)
			return
		}
		if len(samples) == 0 {
			continue
		}

		if p.cfg.Duration > 0 {
			remaining := p.cfg.Duration - offset
			if remaining <= 0 {
				return
			}
			maxFrames := p.cfg.SampleRate.SamplesForDuration(remaining)
			if maxFrames == 0 {
				// the leftover is shorter than one sample period; an empty
				// chunk would never advance the offset
				return
			}
			if len(samples) > maxFrames {
				samples = samples[:maxFrames]
			}
		}

		chunk := &chunkbuffer.Chunk{
			Seq:        seq,
			Samples:    samples,
			SampleRate: p.cfg.SampleRate,
			Offset:     offset,
		}
		seq++
		offset += chunk.Duration()

		err = sess.input.Put(ctx, chunk, p.cfg.PutTimeout)
		switch {
		case err == nil:
		case errors.Is(err, chunkbuffer.ErrDropped):
			logger.Warnf(ctx, "the capture buffer is full, dropped chunk %d", chunk.Seq)
		default:
			return
		}

		if p.cfg.Duration > 0 && offset >= p.cfg.Duration {
			return
		}
	}
}

func (p *Pipeline) processLoop(
	ctx context.Context,
	sess *Session,
	router *OutputRouter,
) (_err error) {
	logger.Tracef(ctx, "processLoop")
	defer func() { logger.Tracef(ctx, "/processLoop: %v", _err) }()

	var window *rollingWindow
	if m, ok := p.cfg.Method.(profile.Adaptive); ok && p.cfg.RefreshChunks > 0 {
		span := 2 * m.MinSilence
		if span < p.cfg.ProfilingWindow {
			span = p.cfg.ProfilingWindow
		}
		window = newRollingWindow(p.cfg.SampleRate.SamplesForDuration(span))
	}

	profiling := true
	if pre, ok := p.source.(Preloaded); ok {
		// the whole audio is already here, profile before streaming starts
		if err := p.establishProfile(ctx, sess, pre.AllSamples()); err != nil {
			return err
		}
		sess.compareAndSetState(StateProfiling, StateRunning)
		profiling = false
	}

	var (
		parked      []*chunkbuffer.Chunk
		accumulated []float64
		expectedSeq uint64
	)
	target := p.cfg.profilingTarget()
	for {
		chunk, err := sess.input.Get(ctx)
		switch {
		case err == nil:
		case errors.Is(err, chunkbuffer.ErrClosed):
			// the capture ended and Get already drained the backlog
			if profiling && len(parked) > 0 {
				if err := p.establishProfile(ctx, sess, accumulated); err != nil {
					return err
				}
				for _, c := range parked {
					if err := p.processChunk(ctx, sess, router, window, c); err != nil {
						return err
					}
				}
			}
			return nil
		default:
			return err
		}

		if chunk.Seq != expectedSeq {
			logger.Warnf(ctx, "sequence gap: expected chunk %d, got %d (%d dropped)",
				expectedSeq, chunk.Seq, chunk.Seq-expectedSeq)
		}
		expectedSeq = chunk.Seq + 1

		if window != nil {
			window.Append(chunk.Samples)
		}

		if profiling {
			parked = append(parked, chunk)
			accumulated = append(accumulated, chunk.Samples...)
			if p.cfg.SampleRate.DurationForSamples(len(accumulated)) < target {
				continue
			}
			if err := p.establishProfile(ctx, sess, accumulated); err != nil {
				return err
			}
			sess.compareAndSetState(StateProfiling, StateRunning)
			profiling = false
			accumulated = nil
			for _, c := range parked {
				if err := p.processChunk(ctx, sess, router, window, c); err != nil {
					return err
				}
			}
			parked = nil
			continue
		}

		if err := p.processChunk(ctx, sess, router, window, chunk); err != nil {
			return err
		}
	}
}

// establishProfile extracts the initial profile with the fallback chain:
// configured method, then the previously known profile, then a fixed
// first-window profile as the last resort. Every fallback is logged and
// counted.
func (p *Pipeline) establishProfile(
	ctx context.Context,
	sess *Session,
	samples []float64,
) error {
	prof, err := profile.Extract(ctx, samples, p.cfg.SampleRate, p.cfg.Method, p.loader)
	if err == nil {
		sess.currentProfile.Store(prof)
		logger.Infof(ctx, "noise profile: %s", prof.Metadata)
		return nil
	}

	logger.Warnf(ctx, "unable to extract a noise profile: %v", err)
	sess.profileFallbacks.Add(1)
	if prev := sess.currentProfile.Load(); prev != nil {
		logger.Infof(ctx, "keeping the previous noise profile: %s", prev.Metadata)
		return nil
	}

	fallback := profile.Fixed{Anchor: profile.AnchorStart, Window: p.cfg.FallbackWindow}
	prof, fallbackErr := profile.Extract(ctx, samples, p.cfg.SampleRate, fallback, nil)
	if fallbackErr != nil {
		return fmt.Errorf("unable to extract a noise profile (%w), and the fixed-window fallback failed too: %v", err, fallbackErr)
	}
	logger.Warnf(ctx, "falling back to a fixed-window noise profile: %s", prof.Metadata)
	sess.currentProfile.Store(prof)
	return nil
}

func (p *Pipeline) processChunk(
	ctx context.Context,
	sess *Session,
	router *OutputRouter,
	window *rollingWindow,
	chunk *chunkbuffer.Chunk,
) error {
	if p.cfg.SaveRaw {
		router.WriteRaw(ctx, chunk)
	}

	// the profile reference is snapshotted once per chunk; a concurrent
	// swap never splits a chunk between two profiles
	prof := sess.currentProfile.Load()
	out := make([]float64, len(chunk.Samples))
	if err := p.supp.SuppressNoise(ctx, chunk.Samples, out, prof); err != nil {
		logger.Errorf(ctx, "suppression failed on chunk %d, forwarding it unsuppressed: %v", chunk.Seq, err)
		sess.suppressionFailures.Add(1)
		out = chunk.Samples
	}

	processed := &chunkbuffer.Chunk{
		Seq:        chunk.Seq,
		Samples:    out,
		SampleRate: chunk.SampleRate,
		Offset:     chunk.Offset,
	}
	if err := router.WriteProcessed(ctx, processed); err != nil {
		return err
	}

	count := sess.chunksProcessed.Add(1)
	if window != nil && count%p.cfg.RefreshChunks == 0 {
		p.refreshProfile(ctx, sess, window)
	}
	return nil
}

// refreshProfile re-runs the adaptive extraction over the rolling raw
// window. A failure keeps the working profile and is retried at the next
// cadence, a success swaps the profile for the next chunk.
func (p *Pipeline) refreshProfile(
	ctx context.Context,
	sess *Session,
	window *rollingWindow,
) {
	m, ok := p.cfg.Method.(profile.Adaptive)
	if !ok {
		return
	}
	if window.Duration(p.cfg.SampleRate) < m.MinSilence {
		return
	}
	prof, err := profile.Extract(ctx, window.Snapshot(), p.cfg.SampleRate, m, nil)
	if err != nil {
		logger.Debugf(ctx, "profile refresh failed, keeping the current one: %v", err)
		return
	}
	sess.currentProfile.Store(prof)
	refreshes := sess.profileRefreshes.Add(1)
	logger.Debugf(ctx, "noise profile refreshed (#%d): %s", refreshes, prof.Metadata)
}

func (p *Pipeline) finalize(
	ctx context.Context,
	sess *Session,
	router *OutputRouter,
	err error,
) {
	logger.Tracef(ctx, "finalize")
	defer logger.Tracef(ctx, "/finalize")

	if closeErr := p.source.Close(); closeErr != nil {
		logger.Warnf(ctx, "unable to close the capture source: %v", closeErr)
	}
	if closeErr := router.Close(); closeErr != nil {
		logger.Warnf(ctx, "unable to close the sinks: %v", closeErr)
		if err == nil {
			// a sink that cannot finalize its file lost data
			err = closeErr
		}
	}
	if sess.output != nil {
		sess.output.Close()
	}

	if errors.Is(err, context.Canceled) {
		err = nil
	}

	result := &sess.result
	result.ChunksProcessed = sess.chunksProcessed.Load()
	result.ChunksDropped = sess.input.Dropped()
	if sess.output != nil {
		result.ChunksDropped += sess.output.Dropped()
	}
	result.SuppressionFailures = sess.suppressionFailures.Load()
	result.ProfileFallbacks = sess.profileFallbacks.Load()
	result.ProfileRefreshes = sess.profileRefreshes.Load()
	result.SinkFailures = router.Failures()
	result.BytesWritten, result.RawBytesWritten = router.BytesWritten()
	if prof := sess.currentProfile.Load(); prof != nil {
		meta := prof.Metadata
		result.Profile = &meta
	}
	result.Err = err

	if err != nil {
		sess.setState(StateError)
		logger.Errorf(ctx, "session %s ended with an error: %v", sess.ID, err)
	} else {
		sess.setState(StateStopped)
		logger.Debugf(ctx, "session %s stopped", sess.ID)
	}
	close(sess.done)
}
