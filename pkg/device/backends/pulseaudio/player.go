package pulseaudio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

type Player struct {
	PulseClient *pulse.Client
}

var _ types.Player = (*Player)(nil)

func NewPlayer() (*Player, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &Player{
		PulseClient: c,
	}, nil
}

func (p *Player) Close() error {
	p.PulseClient.Close()
	return nil
}

func (p *Player) Ping(context.Context) error {
	_, err := p.PulseClient.DefaultSink()
	return err
}

func (p *Player) OpenOutputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
) (types.OutputStream, error) {
	if deviceID != types.DefaultDevice {
		return nil, types.DeviceError{
			Op:  "open-output-stream",
			Err: fmt.Errorf("the pulse backend only supports the default device, requested %d", deviceID),
		}
	}

	pipeR, pipeW := io.Pipe()
	stream, err := p.PulseClient.NewPlayback(
		&pulseReader{Reader: pipeR},
		pulse.PlaybackSampleRate(int(sampleRate)),
		pulse.PlaybackChannels(proto.ChannelMap{proto.ChannelMono}),
		pulse.PlaybackLatency(time.Second.Seconds()),
	)
	if err != nil {
		pipeW.Close()
		return nil, types.DeviceError{Op: "open-output-stream", Err: fmt.Errorf("unable to initialize a playback stream: %w", err)}
	}

	stream.Start()
	if stream.Error() != nil {
		pipeW.Close()
		return nil, types.DeviceError{Op: "open-output-stream", Err: fmt.Errorf("an error occurred during playback: %w", stream.Error())}
	}
	return &OutputStream{
		stream: stream,
		pipeW:  pipeW,
	}, nil
}

type OutputStream struct {
	stream *pulse.PlaybackStream
	pipeW  *io.PipeWriter
}

var _ types.OutputStream = (*OutputStream)(nil)

func (s *OutputStream) WriteSamples(
	ctx context.Context,
	samples []float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.pipeW.Write(audio.SamplesToFloat32LE(samples)); err != nil {
		return types.DeviceError{Op: "write", Err: fmt.Errorf("unable to write: %w", err)}
	}
	if err := s.stream.Error(); err != nil {
		return types.DeviceError{Op: "write", Err: fmt.Errorf("an error occurred during playback: %w", err)}
	}
	return nil
}

func (s *OutputStream) Close() error {
	s.pipeW.Close()
	s.stream.Drain()
	s.stream.Close()
	return nil
}

type pulseReader struct {
	io.Reader
}

var _ pulse.Reader = (*pulseReader)(nil)

func (r *pulseReader) Format() byte {
	return proto.FormatFloat32LE
}
