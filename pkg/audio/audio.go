// Package audio holds the scalar types and PCM sample plumbing shared by the
// codec, device and pipeline packages.
package audio

import (
	"time"
)

type SampleRate uint32

type Channel uint16

// SamplesForDuration returns the amount of samples (per channel) that cover
// the given duration at this sample rate.
func (r SampleRate) SamplesForDuration(d time.Duration) int {
	return int(uint64(r) * uint64(d) / uint64(time.Second))
}

// DurationForSamples is the inverse of SamplesForDuration.
func (r SampleRate) DurationForSamples(n int) time.Duration {
	if r == 0 {
		return 0
	}
	return time.Duration(uint64(n) * uint64(time.Second) / uint64(r))
}
