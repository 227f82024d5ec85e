package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/audio/resampler"
	"github.com/xaionaro-go/noiseprofile/pkg/codec"
)

// ProbeWindow is the sliding-window length used by the adaptive silence scan.
const ProbeWindow = 50 * time.Millisecond

// Extract derives a noise profile from the given audio. The codec is only
// used by the External method and may be nil otherwise. Extraction failures
// are pure signals; any fallback policy belongs to the caller.
func Extract(
	ctx context.Context,
	samples []float64,
	sampleRate audio.SampleRate,
	method Method,
	loader codec.Codec,
) (*Profile, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("the sample rate is not set")
	}
	switch m := method.(type) {
	case Fixed:
		return extractFixed(ctx, samples, sampleRate, m)
	case Adaptive:
		return extractAdaptive(ctx, samples, sampleRate, m)
	case External:
		return extractExternal(ctx, sampleRate, m, loader)
	default:
		return nil, fmt.Errorf("unknown extraction method %T", method)
	}
}

func extractFixed(
	ctx context.Context,
	samples []float64,
	sampleRate audio.SampleRate,
	m Fixed,
) (*Profile, error) {
	want := sampleRate.SamplesForDuration(m.Window)
	if len(samples) == 0 {
		return nil, InsufficientDataError{Need: want, Have: 0}
	}

	// A window longer than the audio clamps to the whole buffer; a partial
	// profile is still usable, so this is metadata, not an error.
	short := want > len(samples)
	n := want
	if short {
		n = len(samples)
	}

	var start, end int
	switch m.Anchor {
	case AnchorStart:
		start, end = 0, n
	case AnchorEnd:
		start, end = len(samples)-n, len(samples)
	default:
		return nil, fmt.Errorf("unknown anchor %v", m.Anchor)
	}
	if short {
		logger.Warnf(ctx, "the audio (%d samples) is shorter than the requested %s window (%d samples), using all of it",
			len(samples), m, want)
	}

	region := make([]float64, n)
	copy(region, samples[start:end])
	return &Profile{
		Samples:    region,
		SampleRate: sampleRate,
		Metadata: Metadata{
			Method:   m.String(),
			Start:    sampleRate.DurationForSamples(start),
			End:      sampleRate.DurationForSamples(end),
			Duration: sampleRate.DurationForSamples(n),
			Short:    short,
		},
	}, nil
}

type silenceRegion struct {
	start int
	end   int
	rms   float64
}

func extractAdaptive(
	ctx context.Context,
	samples []float64,
	sampleRate audio.SampleRate,
	m Adaptive,
) (*Profile, error) {
	win := sampleRate.SamplesForDuration(ProbeWindow)
	if win < 1 {
		win = 1
	}
	if len(samples) < win {
		return nil, InsufficientDataError{Need: win, Have: len(samples)}
	}
	stride := win / 4
	if stride < 1 {
		stride = 1
	}
	minSamples := sampleRate.SamplesForDuration(m.MinSilence)

	var (
		regions []silenceRegion
		active  bool
		current silenceRegion
	)
	closeRegion := func() {
		if !active {
			return
		}
		active = false
		if current.end-current.start < minSamples {
			return
		}
		current.rms = audio.RMS(samples[current.start:current.end])
		logger.Debugf(ctx, "qualifying silence region: [%d, %d) rms:%g", current.start, current.end, current.rms)
		regions = append(regions, current)
	}

	for i := 0; i+win <= len(samples); i += stride {
		rms := audio.RMS(samples[i : i+win])
		if rms <= m.Threshold {
			if active && i <= current.end {
				current.end = i + win
			} else {
				closeRegion()
				active = true
				current = silenceRegion{start: i, end: i + win}
			}
			continue
		}
		closeRegion()
	}
	closeRegion()

	if len(regions) == 0 {
		return nil, NoSilenceFoundError{Threshold: m.Threshold, MinSilence: m.MinSilence}
	}

	// Longest region wins; equal lengths prefer the lower mean RMS, then the
	// earlier start. The scan order is deterministic, so so is the result.
	best := regions[0]
	for _, region := range regions[1:] {
		switch {
		case region.end-region.start > best.end-best.start:
			best = region
		case region.end-region.start == best.end-best.start && region.rms < best.rms:
			best = region
		}
	}

	logger.Debugf(ctx, "selected silence region: [%d, %d) of %d candidates", best.start, best.end, len(regions))
	region := make([]float64, best.end-best.start)
	copy(region, samples[best.start:best.end])
	return &Profile{
		Samples:    region,
		SampleRate: sampleRate,
		Metadata: Metadata{
			Method:     "adaptive",
			Start:      sampleRate.DurationForSamples(best.start),
			End:        sampleRate.DurationForSamples(best.end),
			Duration:   sampleRate.DurationForSamples(best.end - best.start),
			RMS:        best.rms,
			Threshold:  m.Threshold,
			MinSilence: m.MinSilence,
		},
	}, nil
}

func extractExternal(
	ctx context.Context,
	sampleRate audio.SampleRate,
	m External,
	loader codec.Codec,
) (*Profile, error) {
	if loader == nil {
		return nil, fmt.Errorf("no codec is available to load '%s'", m.Path)
	}
	samples, fileRate, err := loader.Load(ctx, m.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to load the noise profile from '%s': %w", m.Path, err)
	}
	if len(samples) == 0 {
		return nil, InsufficientDataError{Need: 1, Have: 0}
	}
	if fileRate != sampleRate {
		logger.Infof(ctx, "resampling the noise profile from %dHz to %dHz", fileRate, sampleRate)
		samples, err = resampler.Resample(samples, fileRate, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("unable to resample the noise profile: %w", err)
		}
	}
	return &Profile{
		Samples:    samples,
		SampleRate: sampleRate,
		Metadata: Metadata{
			Method:     "external",
			Duration:   sampleRate.DurationForSamples(len(samples)),
			SourcePath: m.Path,
		},
	}, nil
}
