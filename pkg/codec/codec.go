// Package codec loads and saves audio files for the pipeline. Everything is
// normalized to mono float64 samples; multi-channel sources are downmixed.
package codec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

type Codec interface {
	Load(ctx context.Context, path string) ([]float64, audio.SampleRate, error)
	Save(ctx context.Context, path string, samples []float64, sampleRate audio.SampleRate) error
}

// UnsupportedFormatError is returned when a file's container format is not
// handled by this codec.
type UnsupportedFormatError struct {
	Path   string
	Format string
}

func (err UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %q of file '%s'", err.Format, err.Path)
}

// Auto dispatches on the file extension: WAV and Ogg/Vorbis and MP3 for
// loading, WAV for saving.
type Auto struct{}

var _ Codec = Auto{}

func NewAuto() Auto {
	return Auto{}
}

func (c Auto) Load(
	ctx context.Context,
	path string,
) ([]float64, audio.SampleRate, error) {
	ext := strings.ToLower(filepath.Ext(path))
	logger.Debugf(ctx, "loading '%s' (format: %s)", path, ext)
	switch ext {
	case ".wav", ".wave":
		return loadWAV(ctx, path)
	case ".ogg", ".oga":
		return loadVorbis(ctx, path)
	case ".mp3":
		return loadMP3(ctx, path)
	default:
		return nil, 0, UnsupportedFormatError{Path: path, Format: ext}
	}
}

func (c Auto) Save(
	ctx context.Context,
	path string,
	samples []float64,
	sampleRate audio.SampleRate,
) error {
	ext := strings.ToLower(filepath.Ext(path))
	logger.Debugf(ctx, "saving %d samples to '%s' (format: %s)", len(samples), path, ext)
	switch ext {
	case ".wav", ".wave":
		return saveWAV(ctx, path, samples, sampleRate)
	default:
		return UnsupportedFormatError{Path: path, Format: ext}
	}
}
