package portaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

type Recorder struct{}

var _ types.Recorder = (*Recorder)(nil)

func NewRecorder() (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &Recorder{}, nil
}

func (*Recorder) Close() error {
	return nil
}

func (*Recorder) Ping(
	ctx context.Context,
) error {
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "device info: %#+v", info)
	return nil
}

func (*Recorder) ListDevices(
	ctx context.Context,
) ([]types.Descriptor, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, types.DeviceError{Op: "list-devices", Err: err}
	}
	defaultInput, _ := portaudio.DefaultInputDevice()
	defaultOutput, _ := portaudio.DefaultOutputDevice()

	var result []types.Descriptor
	for idx, info := range devices {
		result = append(result, types.Descriptor{
			ID:                idx,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: audio.SampleRate(info.DefaultSampleRate),
			DefaultInput:      info == defaultInput,
			DefaultOutput:     info == defaultOutput,
		})
	}
	return result, nil
}

func deviceByID(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("there is no device with index %d (have %d devices)", deviceID, len(devices))
	}
	return devices[deviceID], nil
}

func (*Recorder) OpenInputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
	chunkFrames int,
) (types.InputStream, error) {
	buf := make([]float32, chunkFrames)

	var (
		stream *portaudio.Stream
		err    error
	)
	if deviceID == types.DefaultDevice {
		stream, err = portaudio.OpenDefaultStream(1, 0, float64(sampleRate), chunkFrames, buf)
	} else {
		var info *portaudio.DeviceInfo
		info, err = deviceByID(deviceID)
		if err != nil {
			return nil, types.DeviceError{Op: "open-input-stream", Err: err}
		}
		params := portaudio.LowLatencyParameters(info, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(sampleRate)
		params.FramesPerBuffer = chunkFrames
		stream, err = portaudio.OpenStream(params, buf)
	}
	if err != nil {
		return nil, types.DeviceError{Op: "open-input-stream", Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, types.DeviceError{Op: "start-input-stream", Err: fmt.Errorf("unable to start the stream: %w", err)}
	}
	logger.Debugf(ctx, "opened an input stream: device:%d rate:%d frames:%d", deviceID, sampleRate, chunkFrames)
	return &InputStream{
		Stream:      stream,
		InputBuffer: buf,
	}, nil
}

type InputStream struct {
	Stream      *portaudio.Stream
	InputBuffer []float32
}

var _ types.InputStream = (*InputStream)(nil)

func (s *InputStream) ReadChunk(
	ctx context.Context,
) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Tracef(ctx, "Read")
	err := s.Stream.Read()
	logger.Tracef(ctx, "/Read: %v", err)
	if err != nil {
		return nil, types.DeviceError{Op: "read", Err: fmt.Errorf("unable to read: %w", err)}
	}

	chunk := make([]float64, len(s.InputBuffer))
	for idx, sample := range s.InputBuffer {
		chunk[idx] = float64(sample)
	}
	return chunk, nil
}

func (s *InputStream) Close() error {
	s.Stream.Abort()
	return s.Stream.Close()
}
