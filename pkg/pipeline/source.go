package pipeline

import (
	"context"
	"io"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

// Source produces the raw capture audio chunk by chunk. io.EOF signals the
// natural end of the stream. A device.InputStream satisfies it directly.
type Source interface {
	ReadChunk(ctx context.Context) ([]float64, error)
	Close() error
}

// Preloaded is implemented by sources whose whole audio is available up
// front; the initial profile is then extracted from the full buffer before
// streaming starts, instead of accumulating live audio.
type Preloaded interface {
	AllSamples() []float64
}

// BufferSource replays an already decoded buffer (a loaded file) as a chunk
// stream.
type BufferSource struct {
	samples     []float64
	sampleRate  audio.SampleRate
	chunkFrames int
	pos         int
}

var _ Source = (*BufferSource)(nil)
var _ Preloaded = (*BufferSource)(nil)

func NewBufferSource(
	samples []float64,
	sampleRate audio.SampleRate,
	chunkFrames int,
) *BufferSource {
	return &BufferSource{
		samples:     samples,
		sampleRate:  sampleRate,
		chunkFrames: chunkFrames,
	}
}

func (s *BufferSource) AllSamples() []float64 {
	return s.samples
}

func (s *BufferSource) ReadChunk(
	ctx context.Context,
) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	end := s.pos + s.chunkFrames
	if end > len(s.samples) {
		end = len(s.samples)
	}
	chunk := s.samples[s.pos:end]
	s.pos = end
	return chunk, nil
}

func (s *BufferSource) Close() error {
	return nil
}
