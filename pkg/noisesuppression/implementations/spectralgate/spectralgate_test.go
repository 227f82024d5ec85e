package spectralgate

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
)

const testRate = audio.SampleRate(16000)

// deterministic white-ish noise
func pseudoNoise(n int, amplitude float64, seed uint64) []float64 {
	state := seed
	samples := make([]float64, n)
	for idx := range samples {
		state = state*6364136223846793005 + 1442695040888963407
		samples[idx] = amplitude * (float64(state>>11)/float64(1<<53)*2 - 1)
	}
	return samples
}

func noiseProfile(t *testing.T) *profile.Profile {
	t.Helper()
	return &profile.Profile{
		Samples:    pseudoNoise(8000, 0.02, 1),
		SampleRate: testRate,
		Metadata:   profile.Metadata{Method: "first_0.5", Duration: 500 * time.Millisecond},
	}
}

func TestSuppressNoiseOnNoiseOnlyInput(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	defer s.Close()

	input := pseudoNoise(8000, 0.02, 2)
	output := make([]float64, len(input))
	require.NoError(t, s.SuppressNoise(ctx, input, output, noiseProfile(t)))

	assert.Less(t, audio.RMS(output), 0.5*audio.RMS(input),
		"noise-only audio must lose a significant share of its energy")
}

func TestSuppressNoiseKeepsTone(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	defer s.Close()

	noise := pseudoNoise(16000, 0.01, 3)
	input := make([]float64, len(noise))
	for idx := range input {
		input[idx] = noise[idx] + 0.5*math.Sin(2*math.Pi*440*float64(idx)/float64(testRate))
	}
	output := make([]float64, len(input))
	p := &profile.Profile{Samples: pseudoNoise(8000, 0.01, 4), SampleRate: testRate}
	require.NoError(t, s.SuppressNoise(ctx, input, output, p))

	assert.Greater(t, audio.RMS(output), 0.3*audio.RMS(input),
		"a loud tone must survive the gate")
}

func TestSuppressNoiseChunkEdges(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})
	defer s.Close()

	input := pseudoNoise(8000, 0.02, 8)
	output := make([]float64, len(input))
	require.NoError(t, s.SuppressNoise(ctx, input, output, noiseProfile(t)))

	hop := s.cfg.FFTSize / 2
	assert.Less(t, audio.RMS(output[:hop]), audio.RMS(input[:hop]),
		"the leading edge must be suppressed, not amplified")
	assert.Less(t, audio.RMS(output[len(output)-hop:]), audio.RMS(input[len(input)-hop:]),
		"the trailing edge must be suppressed, not amplified")

	var peak float64
	for _, sample := range output {
		peak = math.Max(peak, math.Abs(sample))
	}
	assert.Less(t, peak, 0.05, "gating must never push a sample beyond the input scale")
}

func TestSuppressNoiseValidation(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})

	err := s.SuppressNoise(ctx, make([]float64, 10), make([]float64, 9), noiseProfile(t))
	assert.Error(t, err)

	err = s.SuppressNoise(ctx, make([]float64, 10), make([]float64, 10), nil)
	assert.Error(t, err)

	err = s.SuppressNoise(ctx, nil, nil, noiseProfile(t))
	assert.NoError(t, err)
}

func TestThresholdCacheFollowsProfileSwap(t *testing.T) {
	ctx := context.Background()
	s := New(Config{FFTSize: 512})

	first := noiseProfile(t)
	input := pseudoNoise(4096, 0.02, 5)
	output := make([]float64, len(input))
	require.NoError(t, s.SuppressNoise(ctx, input, output, first))
	cached := s.cachedProfile
	require.NoError(t, s.SuppressNoise(ctx, input, output, first))
	assert.Same(t, cached, s.cachedProfile)

	second := &profile.Profile{Samples: pseudoNoise(8000, 0.05, 6), SampleRate: testRate}
	require.NoError(t, s.SuppressNoise(ctx, input, output, second))
	assert.Same(t, second, s.cachedProfile)
}

func TestChunkShorterThanFrame(t *testing.T) {
	ctx := context.Background()
	s := New(Config{})

	input := pseudoNoise(100, 0.02, 7)
	output := make([]float64, len(input))
	require.NoError(t, s.SuppressNoise(ctx, input, output, noiseProfile(t)))
	assert.Len(t, output, len(input))
}
