package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
	"github.com/xaionaro-go/noiseprofile/pkg/codec"
	"github.com/xaionaro-go/noiseprofile/pkg/noisesuppression"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
)

// synthBuffer is a 440Hz tone with one near-silent range.
func synthBuffer(
	sampleRate audio.SampleRate,
	total, silentFrom, silentTo time.Duration,
) []float64 {
	samples := make([]float64, sampleRate.SamplesForDuration(total))
	silentStart := sampleRate.SamplesForDuration(silentFrom)
	silentEnd := sampleRate.SamplesForDuration(silentTo)
	for i := range samples {
		if i >= silentStart && i < silentEnd {
			samples[i] = 0.001
			continue
		}
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	return samples
}

// quietBuffer is low-level deterministic noise, silent everywhere.
func quietBuffer(sampleRate audio.SampleRate, total time.Duration) []float64 {
	samples := make([]float64, sampleRate.SamplesForDuration(total))
	state := uint32(1)
	for i := range samples {
		state = state*1664525 + 1013904223
		samples[i] = 0.005 * (float64(state)/float64(math.MaxUint32)*2 - 1)
	}
	return samples
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(16000)
	samples := synthBuffer(sampleRate, 10*time.Second, 2*time.Second, 3*time.Second)
	outPath := filepath.Join(t.TempDir(), "out.wav")

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Adaptive{Threshold: 0.01, MinSilence: 500 * time.Millisecond},
		OutputMode:    OutputModeFile,
		OutputPath:    outPath,
	}
	source := NewBufferSource(samples, sampleRate, sampleRate.SamplesForDuration(cfg.ChunkDuration))
	p, err := New(cfg, source, noisesuppression.NewDummy(), nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)
	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)

	assert.Equal(t, StateStopped, sess.State())
	assert.EqualValues(t, 100, result.ChunksProcessed)
	assert.Zero(t, result.ChunksDropped)
	assert.Zero(t, result.SuppressionFailures)
	assert.Zero(t, result.ProfileFallbacks)
	require.NotNil(t, result.Profile)
	assert.Equal(t, 2*time.Second, result.Profile.Start)
	assert.Equal(t, 3*time.Second, result.Profile.End)
	assert.EqualValues(t, len(samples)*2, result.BytesWritten)

	loaded, loadedRate, err := codec.NewAuto().Load(ctx, outPath)
	require.NoError(t, err)
	assert.Equal(t, sampleRate, loadedRate)
	assert.Len(t, loaded, len(samples))
}

func TestPipelineDurationLimit(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(8000)
	samples := quietBuffer(sampleRate, 2*time.Second)
	outPath := filepath.Join(t.TempDir(), "out.wav")

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:    OutputModeFile,
		OutputPath:    outPath,
		Duration:      time.Second,
	}
	source := NewBufferSource(samples, sampleRate, sampleRate.SamplesForDuration(cfg.ChunkDuration))
	p, err := New(cfg, source, noisesuppression.NewDummy(), nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)
	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 10, result.ChunksProcessed)

	loaded, _, err := codec.NewAuto().Load(ctx, outPath)
	require.NoError(t, err)
	assert.Len(t, loaded, sampleRate.SamplesForDuration(time.Second))
}

// endlessSource produces lightly paced silence forever; only a duration
// limit or a stop ends the capture.
type endlessSource struct {
	chunkFrames int
}

func (s endlessSource) ReadChunk(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	time.Sleep(time.Millisecond)
	return make([]float64, s.chunkFrames), nil
}

func (endlessSource) Close() error {
	return nil
}

func TestPipelineDurationLimitSubSamplePeriod(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(1000)
	outPath := filepath.Join(t.TempDir(), "out.wav")

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:    OutputModeFile,
		OutputPath:    outPath,
		// the leftover after five chunks is shorter than one sample period;
		// the capture must end instead of emitting empty chunks forever
		Duration: 500*time.Millisecond + 500*time.Microsecond,
	}
	source := endlessSource{chunkFrames: sampleRate.SamplesForDuration(cfg.ChunkDuration)}
	p, err := New(cfg, source, noisesuppression.NewDummy(), nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)
	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 5, result.ChunksProcessed)
	assert.Equal(t, StateStopped, sess.State())
}

func TestSessionStopDrainsAndStops(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(1000)
	outPath := filepath.Join(t.TempDir(), "out.wav")

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:    OutputModeFile,
		OutputPath:    outPath,
	}
	source := endlessSource{chunkFrames: sampleRate.SamplesForDuration(cfg.ChunkDuration)}
	p, err := New(cfg, source, noisesuppression.NewDummy(), nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	sess.Stop()
	sess.Stop() // idempotent

	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Equal(t, StateStopped, sess.State())
	assert.NotZero(t, result.ChunksProcessed)
}

func TestPipelineAdaptiveFallback(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(8000)
	// loud everywhere, the adaptive search cannot find silence
	samples := synthBuffer(sampleRate, time.Second, 0, 0)
	outPath := filepath.Join(t.TempDir(), "out.wav")

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Adaptive{Threshold: 0.01, MinSilence: 200 * time.Millisecond},
		OutputMode:    OutputModeFile,
		OutputPath:    outPath,
	}
	source := NewBufferSource(samples, sampleRate, sampleRate.SamplesForDuration(cfg.ChunkDuration))
	p, err := New(cfg, source, noisesuppression.NewDummy(), nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)
	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 1, result.ProfileFallbacks)
	require.NotNil(t, result.Profile)
	assert.Equal(t, time.Duration(0), result.Profile.Start)
	assert.Equal(t, DefaultFallbackWindow, result.Profile.End)
}

func TestPipelineProfileRefresh(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(8000)
	samples := quietBuffer(sampleRate, 5*time.Second)
	outPath := filepath.Join(t.TempDir(), "out.wav")

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Adaptive{Threshold: 0.01, MinSilence: 200 * time.Millisecond},
		OutputMode:    OutputModeFile,
		OutputPath:    outPath,
		RefreshChunks: 10,
	}
	source := NewBufferSource(samples, sampleRate, sampleRate.SamplesForDuration(cfg.ChunkDuration))
	p, err := New(cfg, source, noisesuppression.NewDummy(), nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)
	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 50, result.ChunksProcessed)
	assert.EqualValues(t, 5, result.ProfileRefreshes)
}

// flakySuppressor negates the signal so processed chunks are
// distinguishable from forwarded raw ones, and fails on one chosen call.
type flakySuppressor struct {
	calls  atomic.Uint64
	failOn uint64
}

func (s *flakySuppressor) Close() error {
	return nil
}

func (s *flakySuppressor) SuppressNoise(
	ctx context.Context,
	input []float64,
	output []float64,
	noise *profile.Profile,
) error {
	if s.calls.Add(1) == s.failOn {
		return fmt.Errorf("injected failure")
	}
	for i, sample := range input {
		output[i] = -sample
	}
	return nil
}

func TestSuppressionFailureForwardsRawChunk(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(1000)
	samples := make([]float64, sampleRate.SamplesForDuration(time.Second))
	for i := range samples {
		samples[i] = float64(i+1) / float64(len(samples))
	}

	cfg := Config{
		SampleRate:    sampleRate,
		ChunkDuration: 100 * time.Millisecond,
		Method:        profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:    OutputModeStream,
		PutTimeout:    time.Second,
	}
	chunkFrames := sampleRate.SamplesForDuration(cfg.ChunkDuration)
	source := NewBufferSource(samples, sampleRate, chunkFrames)
	supp := &flakySuppressor{failOn: 3}
	p, err := New(cfg, source, supp, nil)
	require.NoError(t, err)

	sess, err := p.Start(ctx)
	require.NoError(t, err)

	var processed []*chunkbuffer.Chunk
	for {
		chunk, err := sess.Output().Get(ctx)
		if err != nil {
			require.ErrorIs(t, err, chunkbuffer.ErrClosed)
			break
		}
		processed = append(processed, chunk)
	}

	result, err := sess.Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 1, result.SuppressionFailures)
	require.Len(t, processed, 10)

	for _, chunk := range processed {
		raw := samples[int(chunk.Seq)*chunkFrames : (int(chunk.Seq)+1)*chunkFrames]
		if chunk.Seq == 2 {
			// the failed chunk passes through unsuppressed
			assert.Equal(t, raw, chunk.Samples, "chunk %d", chunk.Seq)
			continue
		}
		for i, sample := range chunk.Samples {
			require.Equal(t, -raw[i], sample, "chunk %d sample %d", chunk.Seq, i)
		}
	}
}

// fakeSink records chunks and fails after a set number of successes.
type fakeSink struct {
	name      string
	failAfter int // negative means never
	chunks    []*chunkbuffer.Chunk
	closed    bool
}

func (s *fakeSink) Name() string {
	return s.name
}

func (s *fakeSink) WriteChunk(ctx context.Context, chunk *chunkbuffer.Chunk) error {
	if s.failAfter >= 0 && len(s.chunks) >= s.failAfter {
		return SinkWriteError{Sink: s.name, Err: fmt.Errorf("injected failure")}
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *fakeSink) BytesWritten() uint64 {
	return uint64(len(s.chunks))
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

// fakeLiveSource pretends to be a device: not Preloaded, so the pipeline
// has to park chunks until the initial profile exists.
type fakeLiveSource struct{}

func (fakeLiveSource) ReadChunk(ctx context.Context) ([]float64, error) {
	return nil, io.EOF
}

func (fakeLiveSource) Close() error {
	return nil
}

func TestSinkFailureMidRunKeepsRemainingSink(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(1000)
	cfg := Config{
		SampleRate:     sampleRate,
		ChunkDuration:  100 * time.Millisecond,
		Method:         profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:     OutputModeStreamAndFile,
		OutputPath:     "unused.wav",
		BufferCapacity: 32,
	}.withDefaults()

	p := &Pipeline{
		cfg:    cfg,
		source: fakeLiveSource{},
		supp:   noisesuppression.NewDummy(),
	}
	sess := newSession(cfg)

	file := &fakeSink{name: "file", failAfter: 5}
	stream := &fakeSink{name: "stream", failAfter: -1}
	router := newOutputRouter([]Sink{file, stream}, nil)

	chunkFrames := sampleRate.SamplesForDuration(cfg.ChunkDuration)
	for seq := uint64(0); seq < 20; seq++ {
		chunk := &chunkbuffer.Chunk{
			Seq:        seq,
			Samples:    make([]float64, chunkFrames),
			SampleRate: sampleRate,
			Offset:     time.Duration(seq) * cfg.ChunkDuration,
		}
		require.NoError(t, sess.input.Put(ctx, chunk, 0))
	}
	sess.input.Close()

	require.NoError(t, p.processLoop(ctx, sess, router))

	assert.Len(t, file.chunks, 5)
	assert.True(t, file.closed)
	require.Len(t, stream.chunks, 20)
	for i, chunk := range stream.chunks {
		assert.EqualValues(t, i, chunk.Seq)
	}

	failures := router.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "file", failures[0].Sink)
}

func TestAllSinksFailedAbortsSession(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(1000)
	cfg := Config{
		SampleRate:     sampleRate,
		ChunkDuration:  100 * time.Millisecond,
		Method:         profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:     OutputModeFile,
		OutputPath:     "unused.wav",
		BufferCapacity: 32,
	}.withDefaults()

	p := &Pipeline{
		cfg:    cfg,
		source: fakeLiveSource{},
		supp:   noisesuppression.NewDummy(),
	}
	sess := newSession(cfg)
	router := newOutputRouter([]Sink{&fakeSink{name: "file", failAfter: 2}}, nil)

	chunkFrames := sampleRate.SamplesForDuration(cfg.ChunkDuration)
	for seq := uint64(0); seq < 5; seq++ {
		chunk := &chunkbuffer.Chunk{
			Seq:        seq,
			Samples:    make([]float64, chunkFrames),
			SampleRate: sampleRate,
		}
		require.NoError(t, sess.input.Put(ctx, chunk, 0))
	}
	sess.input.Close()

	err := p.processLoop(ctx, sess, router)
	require.ErrorIs(t, err, ErrAllSinksFailed)
}

// swappingSuppressor records the profile of every call and installs a new
// profile into the session in the middle of the call, the way a concurrent
// refresh would.
type swappingSuppressor struct {
	sess   *Session
	used   []*profile.Profile
	stored []*profile.Profile
}

func (s *swappingSuppressor) Close() error {
	return nil
}

func (s *swappingSuppressor) SuppressNoise(
	ctx context.Context,
	input []float64,
	output []float64,
	noise *profile.Profile,
) error {
	s.used = append(s.used, noise)
	next := &profile.Profile{Samples: []float64{0}, SampleRate: 1000}
	s.sess.currentProfile.Store(next)
	s.stored = append(s.stored, next)
	copy(output, input)
	return nil
}

func TestProfileSwapLandsOnChunkBoundary(t *testing.T) {
	ctx := context.Background()
	sampleRate := audio.SampleRate(1000)
	cfg := Config{
		SampleRate:     sampleRate,
		ChunkDuration:  100 * time.Millisecond,
		Method:         profile.Fixed{Anchor: profile.AnchorStart, Window: 100 * time.Millisecond},
		OutputMode:     OutputModeFile,
		OutputPath:     "unused.wav",
		BufferCapacity: 32,
	}.withDefaults()

	sess := newSession(cfg)
	supp := &swappingSuppressor{sess: sess}
	p := &Pipeline{
		cfg:    cfg,
		source: fakeLiveSource{},
		supp:   supp,
	}
	router := newOutputRouter([]Sink{&fakeSink{name: "file", failAfter: -1}}, nil)

	chunkFrames := sampleRate.SamplesForDuration(cfg.ChunkDuration)
	for seq := uint64(0); seq < 8; seq++ {
		require.NoError(t, sess.input.Put(ctx, &chunkbuffer.Chunk{
			Seq:        seq,
			Samples:    make([]float64, chunkFrames),
			SampleRate: sampleRate,
		}, 0))
	}
	sess.input.Close()

	require.NoError(t, p.processLoop(ctx, sess, router))
	require.Len(t, supp.used, 8)

	// a profile installed while chunk N is in flight becomes visible exactly
	// at chunk N+1, never within N
	for i := 1; i < len(supp.used); i++ {
		assert.Same(t, supp.stored[i-1], supp.used[i], "chunk %d", i)
	}
}

func TestBufferSource(t *testing.T) {
	ctx := context.Background()
	samples := []float64{1, 2, 3, 4, 5}
	source := NewBufferSource(samples, 1000, 2)

	chunk, err := source.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, chunk)

	chunk, err = source.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, chunk)

	chunk, err = source.ReadChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, chunk)

	_, err = source.ReadChunk(ctx)
	require.ErrorIs(t, err, io.EOF)
}
