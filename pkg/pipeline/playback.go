package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
	"github.com/xaionaro-go/noiseprofile/pkg/device"
)

// PlayProcessed drains the session's processed-chunk stream into a device
// output stream until the session ends. It is the live-playback consumer
// of the 'stream' output modes and runs at the device's own cadence.
func PlayProcessed(
	ctx context.Context,
	sess *Session,
	out device.OutputStream,
) error {
	output := sess.Output()
	if output == nil {
		return fmt.Errorf("the session has no processed-chunk stream (output mode '%s')", sess.cfg.OutputMode)
	}
	for {
		chunk, err := output.Get(ctx)
		switch {
		case err == nil:
		case errors.Is(err, chunkbuffer.ErrClosed):
			return nil
		default:
			return err
		}
		logger.Tracef(ctx, "WriteSamples: chunk %d", chunk.Seq)
		err = out.WriteSamples(ctx, chunk.Samples)
		logger.Tracef(ctx, "/WriteSamples: chunk %d: %v", chunk.Seq, err)
		if err != nil {
			return fmt.Errorf("unable to play chunk %d: %w", chunk.Seq, err)
		}
	}
}
