// Package profile derives noise profiles (representative noise-only sample
// buffers) from audio, either by fixed windows, by adaptive silence search or
// from an external sample file.
package profile

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

// Profile is a value: swapping the session's current profile never mutates
// audio that was already emitted.
type Profile struct {
	Samples    []float64
	SampleRate audio.SampleRate
	Metadata   Metadata
}

// Metadata records where a profile came from.
type Metadata struct {
	Method string
	// Start and End delimit the source range [Start, End) within the audio
	// the profile was extracted from. Zero for external profiles.
	Start    time.Duration
	End      time.Duration
	Duration time.Duration
	// Short marks a fixed-window profile that was clamped because the audio
	// was shorter than the requested window.
	Short bool
	// RMS is the mean energy of the selected region (adaptive only).
	RMS float64
	// Threshold and MinSilence are the search parameters (adaptive only).
	Threshold  float64
	MinSilence time.Duration
	// SourcePath is the sample file the profile was loaded from (external
	// only).
	SourcePath string
}

func (m Metadata) String() string {
	switch {
	case m.SourcePath != "":
		return fmt.Sprintf("%s (%s)", m.Method, m.Duration)
	case m.Short:
		return fmt.Sprintf("%s [%s, %s) short", m.Method, m.Start, m.End)
	default:
		return fmt.Sprintf("%s [%s, %s)", m.Method, m.Start, m.End)
	}
}

// InsufficientDataError signals that the audio is too short for the requested
// extraction.
type InsufficientDataError struct {
	Need int
	Have int
}

func (err InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough audio for profile extraction: need %d samples, have %d", err.Need, err.Have)
}

// NoSilenceFoundError signals that the adaptive search found no qualifying
// region. The caller decides the fallback policy.
type NoSilenceFoundError struct {
	Threshold  float64
	MinSilence time.Duration
}

func (err NoSilenceFoundError) Error() string {
	return fmt.Sprintf(
		"no silence region of at least %s with RMS <= %g found; consider adjusting the threshold or the minimal duration",
		err.MinSilence, err.Threshold,
	)
}
