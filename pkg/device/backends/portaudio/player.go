package portaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

const playbackBufferFrames = 1024

type Player struct{}

var _ types.Player = (*Player)(nil)

func NewPlayer() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &Player{}, nil
}

func (*Player) Close() error {
	return nil
}

func (*Player) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)
	return nil
}

func (*Player) OpenOutputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
) (types.OutputStream, error) {
	buf := make([]float32, playbackBufferFrames)

	var (
		stream *portaudio.Stream
		err    error
	)
	if deviceID == types.DefaultDevice {
		stream, err = portaudio.OpenDefaultStream(0, 1, float64(sampleRate), playbackBufferFrames, &buf)
	} else {
		var info *portaudio.DeviceInfo
		info, err = deviceByID(deviceID)
		if err != nil {
			return nil, types.DeviceError{Op: "open-output-stream", Err: err}
		}
		params := portaudio.LowLatencyParameters(nil, info)
		params.Output.Channels = 1
		params.SampleRate = float64(sampleRate)
		params.FramesPerBuffer = playbackBufferFrames
		stream, err = portaudio.OpenStream(params, &buf)
	}
	if err != nil {
		return nil, types.DeviceError{Op: "open-output-stream", Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, types.DeviceError{Op: "start-output-stream", Err: fmt.Errorf("unable to start the stream: %w", err)}
	}
	logger.Debugf(ctx, "opened an output stream: device:%d rate:%d", deviceID, sampleRate)
	return &OutputStream{
		Stream:       stream,
		OutputBuffer: buf,
	}, nil
}

// OutputStream writes in fixed device-buffer pieces; a partial tail is kept
// pending until the next write or flushed zero-padded on Close.
type OutputStream struct {
	Stream       *portaudio.Stream
	OutputBuffer []float32
	pending      []float32
}

var _ types.OutputStream = (*OutputStream)(nil)

func (s *OutputStream) WriteSamples(
	ctx context.Context,
	samples []float64,
) error {
	for _, sample := range samples {
		s.pending = append(s.pending, float32(sample))
	}
	for len(s.pending) >= len(s.OutputBuffer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		copy(s.OutputBuffer, s.pending[:len(s.OutputBuffer)])
		s.pending = s.pending[len(s.OutputBuffer):]
		logger.Tracef(ctx, "Write")
		err := s.Stream.Write()
		logger.Tracef(ctx, "/Write: %v", err)
		if err != nil {
			return types.DeviceError{Op: "write", Err: fmt.Errorf("unable to write: %w", err)}
		}
	}
	return nil
}

func (s *OutputStream) Close() error {
	if len(s.pending) > 0 {
		copy(s.OutputBuffer, s.pending)
		for idx := len(s.pending); idx < len(s.OutputBuffer); idx++ {
			s.OutputBuffer[idx] = 0
		}
		s.pending = nil
		_ = s.Stream.Write()
	}
	s.Stream.Abort()
	return s.Stream.Close()
}
