package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
)

// OutputMode selects which sinks receive the processed audio.
type OutputMode int

const (
	OutputModeUndefined OutputMode = iota
	OutputModeFile
	OutputModeStream
	OutputModeStreamAndFile
)

func (m OutputMode) String() string {
	switch m {
	case OutputModeFile:
		return "file"
	case OutputModeStream:
		return "stream"
	case OutputModeStreamAndFile:
		return "stream+file"
	default:
		return "undefined"
	}
}

func (m OutputMode) HasFile() bool {
	return m == OutputModeFile || m == OutputModeStreamAndFile
}

func (m OutputMode) HasStream() bool {
	return m == OutputModeStream || m == OutputModeStreamAndFile
}

func ParseOutputMode(s string) (OutputMode, error) {
	switch strings.ToLower(s) {
	case "file":
		return OutputModeFile, nil
	case "stream":
		return OutputModeStream, nil
	case "stream+file", "file+stream":
		return OutputModeStreamAndFile, nil
	default:
		return OutputModeUndefined, fmt.Errorf("unknown output mode '%s' (expected 'file', 'stream' or 'stream+file')", s)
	}
}

const (
	DefaultSampleRate      = audio.SampleRate(44100)
	DefaultChunkDuration   = 100 * time.Millisecond
	DefaultBufferCapacity  = 16
	DefaultRefreshChunks   = 50
	DefaultProfilingWindow = 2 * time.Second
	DefaultFallbackWindow  = 500 * time.Millisecond
)

// Config is the full configuration surface of one session.
type Config struct {
	SampleRate    audio.SampleRate
	ChunkDuration time.Duration
	Method        profile.Method
	OutputMode    OutputMode
	OutputPath    string

	// SaveRaw additionally writes the pre-suppression audio next to the
	// output file (see RawOutputPath).
	SaveRaw bool

	// Duration limits the capture; 0 means until the source ends.
	Duration time.Duration

	// RefreshChunks is how often (in processed chunks) an adaptive profile
	// is re-extracted over the rolling raw window; 0 disables refreshing.
	RefreshChunks uint64

	// ProfilingWindow is how much audio a live source accumulates before
	// the initial profile extraction.
	ProfilingWindow time.Duration

	// FallbackWindow is the fixed-window length used when no profile can be
	// extracted any other way.
	FallbackWindow time.Duration

	// BufferCapacity is the capacity (in chunks) of the capture buffer and
	// of the processed-chunk stream.
	BufferCapacity int

	// PutTimeout bounds how long the capture blocks on a full buffer before
	// dropping the chunk; 0 blocks forever.
	PutTimeout time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.ChunkDuration == 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.BufferCapacity == 0 {
		cfg.BufferCapacity = DefaultBufferCapacity
	}
	if cfg.ProfilingWindow == 0 {
		cfg.ProfilingWindow = DefaultProfilingWindow
	}
	if cfg.FallbackWindow == 0 {
		cfg.FallbackWindow = DefaultFallbackWindow
	}
	return cfg
}

func (cfg Config) Validate() error {
	if cfg.SampleRate == 0 {
		return fmt.Errorf("the sample rate is not set")
	}
	if cfg.ChunkDuration <= 0 {
		return fmt.Errorf("the chunk duration should be positive, got %v", cfg.ChunkDuration)
	}
	if cfg.Method == nil {
		return fmt.Errorf("the profile extraction method is not set")
	}
	switch cfg.OutputMode {
	case OutputModeFile, OutputModeStream, OutputModeStreamAndFile:
	default:
		return fmt.Errorf("the output mode is not set")
	}
	if cfg.OutputMode.HasFile() && cfg.OutputPath == "" {
		return fmt.Errorf("output mode '%s' requires an output path", cfg.OutputMode)
	}
	if cfg.SaveRaw && cfg.OutputPath == "" {
		return fmt.Errorf("saving the raw audio requires an output path")
	}
	if cfg.Duration < 0 {
		return fmt.Errorf("the duration limit should not be negative, got %v", cfg.Duration)
	}
	if cfg.BufferCapacity < 0 {
		return fmt.Errorf("the buffer capacity should not be negative, got %d", cfg.BufferCapacity)
	}
	return nil
}

// RawOutputPath derives where the pre-suppression copy is written.
func (cfg Config) RawOutputPath() string {
	ext := filepath.Ext(cfg.OutputPath)
	return strings.TrimSuffix(cfg.OutputPath, ext) + ".raw.wav"
}

// profilingTarget is how much audio should be accumulated before the first
// extraction attempt of a live session.
func (cfg Config) profilingTarget() time.Duration {
	switch m := cfg.Method.(type) {
	case profile.External:
		return 0
	case profile.Fixed:
		if m.Anchor == profile.AnchorStart && m.Window > 0 {
			return m.Window
		}
		return cfg.ProfilingWindow
	case profile.Adaptive:
		need := m.MinSilence + profile.ProbeWindow
		if need < cfg.ProfilingWindow {
			return cfg.ProfilingWindow
		}
		return need
	default:
		return cfg.ProfilingWindow
	}
}
