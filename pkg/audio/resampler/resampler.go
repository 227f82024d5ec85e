// Package resampler converts sample buffers between sample rates. It is used
// when an external noise-profile file was recorded at a different rate than
// the processing session.
package resampler

import (
	"fmt"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

// Resample converts mono samples from one sample rate to another using linear
// interpolation between the two nearest source samples.
func Resample(
	in []float64,
	from audio.SampleRate,
	to audio.SampleRate,
) ([]float64, error) {
	if from == 0 || to == 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", from, to)
	}
	if from == to || len(in) == 0 {
		out := make([]float64, len(in))
		copy(out, in)
		return out, nil
	}

	outLen := int(uint64(len(in)) * uint64(to) / uint64(from))
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float64, outLen)

	step := float64(from) / float64(to)
	for dstIdx := range out {
		srcPos := float64(dstIdx) * step
		srcIdx := int(srcPos)
		if srcIdx >= len(in)-1 {
			out[dstIdx] = in[len(in)-1]
			continue
		}
		frac := srcPos - float64(srcIdx)
		out[dstIdx] = in[srcIdx]*(1-frac) + in[srcIdx+1]*frac
	}
	return out, nil
}
