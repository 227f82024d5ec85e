package resampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResample(t *testing.T) {
	t.Run("identity", func(t *testing.T) {
		in := []float64{0, 0.25, 0.5, 0.75, 1}
		out, err := Resample(in, 16000, 16000)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("downsample halves the length", func(t *testing.T) {
		in := make([]float64, 1000)
		for idx := range in {
			in[idx] = math.Sin(float64(idx) * 0.01)
		}
		out, err := Resample(in, 32000, 16000)
		require.NoError(t, err)
		assert.Equal(t, 500, len(out))
		// Every output sample lands exactly on an even input sample.
		for idx := 0; idx < len(out); idx++ {
			assert.InDelta(t, in[idx*2], out[idx], 1e-9)
		}
	})

	t.Run("upsample interpolates", func(t *testing.T) {
		in := []float64{0, 1}
		out, err := Resample(in, 8000, 16000)
		require.NoError(t, err)
		require.Equal(t, 4, len(out))
		assert.InDelta(t, 0.0, out[0], 1e-9)
		assert.InDelta(t, 0.5, out[1], 1e-9)
	})

	t.Run("invalid rate", func(t *testing.T) {
		_, err := Resample([]float64{0}, 0, 16000)
		assert.Error(t, err)
	})
}
