package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Anchor int

const (
	AnchorStart Anchor = iota
	AnchorEnd
)

func (a Anchor) String() string {
	switch a {
	case AnchorStart:
		return "first"
	case AnchorEnd:
		return "last"
	default:
		return fmt.Sprintf("unknown_anchor_%d", int(a))
	}
}

// Method describes how a noise profile is obtained. It is parsed once at
// session construction; no component re-parses method strings per call.
type Method interface {
	fmt.Stringer
	isMethod()
}

// Fixed takes a window of the given length from the start or the end of the
// audio.
type Fixed struct {
	Anchor Anchor
	Window time.Duration
}

func (Fixed) isMethod() {}
func (m Fixed) String() string {
	return fmt.Sprintf("%s_%g", m.Anchor, m.Window.Seconds())
}

// Adaptive searches the audio for the best qualifying silence region.
type Adaptive struct {
	// Threshold is the maximum RMS energy of a window that still counts as
	// silence.
	Threshold float64
	// MinSilence is the minimum length of a usable silence region.
	MinSilence time.Duration
}

func (Adaptive) isMethod() {}
func (m Adaptive) String() string {
	return "adaptive"
}

// External loads the profile from an independent audio file.
type External struct {
	Path string
}

func (External) isMethod() {}
func (m External) String() string {
	return "file:" + m.Path
}

// ParseMethod parses a method specification: "first_X" and "last_X" with X in
// seconds, "adaptive", and anything else is treated as a path to a noise
// sample file.
func ParseMethod(
	spec string,
	silenceThreshold float64,
	minSilence time.Duration,
) (Method, error) {
	switch {
	case spec == "adaptive":
		return Adaptive{
			Threshold:  silenceThreshold,
			MinSilence: minSilence,
		}, nil
	case strings.HasPrefix(spec, "first_"), strings.HasPrefix(spec, "last_"):
		parts := strings.SplitN(spec, "_", 2)
		seconds, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("unable to parse the window length of %q: %w", spec, err)
		}
		if seconds <= 0 {
			return nil, fmt.Errorf("the window length of %q is not positive", spec)
		}
		anchor := AnchorStart
		if parts[0] == "last" {
			anchor = AnchorEnd
		}
		return Fixed{
			Anchor: anchor,
			Window: time.Duration(seconds * float64(time.Second)),
		}, nil
	case spec == "":
		return nil, fmt.Errorf("an empty noise profile method")
	default:
		return External{Path: spec}, nil
	}
}
