package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMethod(t *testing.T) {
	t.Run("first", func(t *testing.T) {
		m, err := ParseMethod("first_0.5", 0.01, 300*time.Millisecond)
		require.NoError(t, err)
		fixed, ok := m.(Fixed)
		require.True(t, ok)
		assert.Equal(t, AnchorStart, fixed.Anchor)
		assert.Equal(t, 500*time.Millisecond, fixed.Window)
		assert.Equal(t, "first_0.5", m.String())
	})

	t.Run("last", func(t *testing.T) {
		m, err := ParseMethod("last_2", 0.01, 300*time.Millisecond)
		require.NoError(t, err)
		fixed, ok := m.(Fixed)
		require.True(t, ok)
		assert.Equal(t, AnchorEnd, fixed.Anchor)
		assert.Equal(t, 2*time.Second, fixed.Window)
	})

	t.Run("adaptive carries the search parameters", func(t *testing.T) {
		m, err := ParseMethod("adaptive", 0.02, 700*time.Millisecond)
		require.NoError(t, err)
		adaptive, ok := m.(Adaptive)
		require.True(t, ok)
		assert.Equal(t, 0.02, adaptive.Threshold)
		assert.Equal(t, 700*time.Millisecond, adaptive.MinSilence)
	})

	t.Run("anything else is a file path", func(t *testing.T) {
		m, err := ParseMethod("/tmp/noise.wav", 0.01, 300*time.Millisecond)
		require.NoError(t, err)
		external, ok := m.(External)
		require.True(t, ok)
		assert.Equal(t, "/tmp/noise.wav", external.Path)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := ParseMethod("first_abc", 0.01, 300*time.Millisecond)
		assert.Error(t, err)
		_, err = ParseMethod("first_-1", 0.01, 300*time.Millisecond)
		assert.Error(t, err)
		_, err = ParseMethod("", 0.01, 300*time.Millisecond)
		assert.Error(t, err)
	})
}
