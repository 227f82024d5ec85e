package codec

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

func TestWAVRoundtrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.wav")

	samples := make([]float64, 16000)
	for idx := range samples {
		samples[idx] = 0.25 * math.Sin(2*math.Pi*440*float64(idx)/16000)
	}

	c := NewAuto()
	require.NoError(t, c.Save(ctx, path, samples, 16000))

	loaded, rate, err := c.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate(16000), rate)
	require.Len(t, loaded, len(samples))
	for idx := 0; idx < len(samples); idx += 997 {
		assert.InDelta(t, samples[idx], loaded[idx], 1e-3)
	}
}

func TestWAVWriterIncremental(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "incremental.wav")

	file, err := os.Create(path)
	require.NoError(t, err)

	w, err := NewWAVWriter(file, 8000)
	require.NoError(t, err)
	require.NoError(t, w.WriteSamples([]float64{0, 0.5, -0.5}))
	require.NoError(t, w.WriteSamples([]float64{0.25}))
	assert.Equal(t, uint64(8), w.BytesWritten())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close()) // idempotent
	require.NoError(t, file.Close())

	loaded, rate, err := NewAuto().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate(8000), rate)
	require.Len(t, loaded, 4)
	assert.InDelta(t, 0.5, loaded[1], 1e-3)
	assert.InDelta(t, -0.5, loaded[2], 1e-3)

	assert.Error(t, w.WriteSamples([]float64{0}))
}

func TestWAVStereoDownmix(t *testing.T) {
	// Hand-assemble a stereo float32 WAV and verify the downmix.
	dir := t.TempDir()
	path := filepath.Join(dir, "stereo.wav")

	pcm := audio.SamplesToFloat32LE([]float64{1, 0, 0.5, 0.5})
	header := make([]byte, 0, 44+len(pcm))
	header = append(header, "RIFF"...)
	header = append(header, byte(36+len(pcm)), 0, 0, 0)
	header = append(header, "WAVEfmt "...)
	header = append(header, 16, 0, 0, 0)
	header = append(header, 3, 0) // IEEE float
	header = append(header, 2, 0) // stereo
	header = append(header, 0x80, 0x3e, 0, 0) // 16000
	header = append(header, 0, 0xf4, 1, 0)    // byte rate 128000
	header = append(header, 8, 0, 32, 0)      // block align, bits
	header = append(header, "data"...)
	header = append(header, byte(len(pcm)), 0, 0, 0)
	header = append(header, pcm...)
	require.NoError(t, os.WriteFile(path, header, 0640))

	loaded, rate, err := NewAuto().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, audio.SampleRate(16000), rate)
	require.Len(t, loaded, 2)
	assert.InDelta(t, 0.5, loaded[0], 1e-6)
	assert.InDelta(t, 0.5, loaded[1], 1e-6)
}

func TestUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	c := NewAuto()

	_, _, err := c.Load(ctx, "whatever.flac")
	var formatErr UnsupportedFormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, ".flac", formatErr.Format)

	err = c.Save(ctx, "whatever.mp3", []float64{0}, 16000)
	require.ErrorAs(t, err, &formatErr)
}
