// Package noisesuppression defines the boundary to the spectral denoising
// capability. The pipeline treats implementations as black boxes: one call
// per chunk, profile passed as a snapshot, no profile swap mid-call.
package noisesuppression

import (
	"context"
	"io"

	"github.com/xaionaro-go/noiseprofile/pkg/profile"
)

type NoiseSuppression interface {
	io.Closer

	// SuppressNoise denoises input into output using the given noise profile.
	// Input and output must have the same length; implementations must not
	// retain either slice.
	SuppressNoise(ctx context.Context, input []float64, output []float64, noise *profile.Profile) error
}
