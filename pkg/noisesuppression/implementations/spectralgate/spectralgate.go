// Package spectralgate is a pure-Go spectral gating noise suppressor: per-bin
// thresholds are learned from the noise profile's STFT, and bins below
// threshold are attenuated to a gain floor.
package spectralgate

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/xaionaro-go/noiseprofile/pkg/noisesuppression"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
)

type Config struct {
	// FFTSize is the STFT frame length; zero means 1024.
	FFTSize int
	// GainFloor is the attenuation applied to gated bins; zero means 0.1.
	GainFloor float64
	// ThresholdFactor scales the per-bin standard deviation added to the mean
	// noise magnitude; zero means 1.5.
	ThresholdFactor float64
}

type SpectralGate struct {
	cfg Config
	win []float64

	locker sync.Mutex
	// thresholds are recomputed only when the profile value is replaced.
	cachedProfile *profile.Profile
	thresholds    []float64
}

var _ noisesuppression.NoiseSuppression = (*SpectralGate)(nil)

func New(cfg Config) *SpectralGate {
	if cfg.FFTSize == 0 {
		cfg.FFTSize = 1024
	}
	if cfg.GainFloor == 0 {
		cfg.GainFloor = 0.1
	}
	if cfg.ThresholdFactor == 0 {
		cfg.ThresholdFactor = 1.5
	}
	return &SpectralGate{
		cfg: cfg,
		win: window.Hann(cfg.FFTSize),
	}
}

func (s *SpectralGate) Close() error {
	return nil
}

func (s *SpectralGate) SuppressNoise(
	ctx context.Context,
	input []float64,
	output []float64,
	noise *profile.Profile,
) (_err error) {
	logger.Tracef(ctx, "SuppressNoise, len:%d", len(input))
	defer func() { logger.Tracef(ctx, "/SuppressNoise, len:%d: %v", len(input), _err) }()

	if len(input) != len(output) {
		return fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(input), len(output))
	}
	if noise == nil || len(noise.Samples) == 0 {
		return fmt.Errorf("an empty noise profile")
	}
	if len(input) == 0 {
		return nil
	}

	thresholds, err := s.thresholdsFor(ctx, noise)
	if err != nil {
		return err
	}

	fftSize := s.cfg.FFTSize
	hop := fftSize / 2
	bins := fftSize/2 + 1

	// reflect-pad by one hop: every sample of the chunk itself is then
	// covered by two frames and the overlap-add normalization stays bounded
	// away from zero, otherwise the edges get divided by a vanishing window
	// sum and amplified
	padded := reflectPad(input, hop)
	acc := make([]float64, len(padded)+fftSize)
	norm := make([]float64, len(padded)+fftSize)
	frame := make([]float64, fftSize)
	gains := make([]float64, bins)

	for start := 0; start < len(padded); start += hop {
		for idx := 0; idx < fftSize; idx++ {
			var sample float64
			if start+idx < len(padded) {
				sample = padded[start+idx]
			}
			frame[idx] = sample * s.win[idx]
		}

		spectrum := fft.FFTReal(frame)

		for bin := 0; bin < bins; bin++ {
			if cmplx.Abs(spectrum[bin]) >= thresholds[bin] {
				gains[bin] = 1
			} else {
				gains[bin] = s.cfg.GainFloor
			}
		}
		smoothGains(gains)

		for bin := 0; bin < len(spectrum); bin++ {
			mirrored := bin
			if mirrored >= bins {
				mirrored = len(spectrum) - bin
			}
			spectrum[bin] *= complex(gains[mirrored], 0)
		}

		restored := fft.IFFT(spectrum)
		for idx := 0; idx < fftSize; idx++ {
			acc[start+idx] += real(restored[idx]) * s.win[idx]
			norm[start+idx] += s.win[idx] * s.win[idx]
		}
	}

	for idx := range output {
		if norm[hop+idx] > 1e-8 {
			output[idx] = acc[hop+idx] / norm[hop+idx]
		} else {
			output[idx] = input[idx]
		}
	}
	return nil
}

// reflectPad mirrors the chunk around its edges so the boundary frames see
// plausible audio instead of a zero cliff.
func reflectPad(samples []float64, pad int) []float64 {
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)
	for i := 0; i < pad; i++ {
		padded[pad-1-i] = samples[mirrorIndex(i+1, len(samples))]
		padded[pad+len(samples)+i] = samples[mirrorIndex(len(samples)-2-i, len(samples))]
	}
	return padded
}

func mirrorIndex(idx, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	idx %= period
	if idx < 0 {
		idx += period
	}
	if idx >= n {
		idx = period - idx
	}
	return idx
}

func (s *SpectralGate) thresholdsFor(
	ctx context.Context,
	noise *profile.Profile,
) ([]float64, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	if s.cachedProfile == noise {
		return s.thresholds, nil
	}

	fftSize := s.cfg.FFTSize
	hop := fftSize / 2
	bins := fftSize/2 + 1

	sums := make([]float64, bins)
	sqSums := make([]float64, bins)
	frame := make([]float64, fftSize)
	frames := 0
	for start := 0; start == 0 || start+fftSize <= len(noise.Samples); start += hop {
		for idx := 0; idx < fftSize; idx++ {
			var sample float64
			if start+idx < len(noise.Samples) {
				sample = noise.Samples[start+idx]
			}
			frame[idx] = sample * s.win[idx]
		}
		spectrum := fft.FFTReal(frame)
		for bin := 0; bin < bins; bin++ {
			magnitude := cmplx.Abs(spectrum[bin])
			sums[bin] += magnitude
			sqSums[bin] += magnitude * magnitude
		}
		frames++
	}

	thresholds := make([]float64, bins)
	for bin := 0; bin < bins; bin++ {
		mean := sums[bin] / float64(frames)
		variance := sqSums[bin]/float64(frames) - mean*mean
		if variance < 0 {
			variance = 0
		}
		thresholds[bin] = mean + s.cfg.ThresholdFactor*math.Sqrt(variance)
	}

	logger.Debugf(ctx, "recomputed the noise thresholds from %d frames of profile %s", frames, noise.Metadata)
	s.cachedProfile = noise
	s.thresholds = thresholds
	return thresholds, nil
}

// smoothGains applies a 3-tap moving average so isolated bins do not produce
// musical noise.
func smoothGains(gains []float64) {
	if len(gains) < 3 {
		return
	}
	prev := gains[0]
	for idx := 1; idx < len(gains)-1; idx++ {
		current := gains[idx]
		gains[idx] = (prev + current + gains[idx+1]) / 3
		prev = current
	}
}
