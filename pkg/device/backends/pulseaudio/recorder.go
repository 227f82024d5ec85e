package pulseaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

type Recorder struct {
	PulseClient *pulse.Client
}

var _ types.Recorder = (*Recorder)(nil)

func NewRecorder() (*Recorder, error) {
	c, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}
	return &Recorder{
		PulseClient: c,
	}, nil
}

func (r *Recorder) Close() error {
	r.PulseClient.Close()
	return nil
}

func (r *Recorder) Ping(context.Context) error {
	_, err := r.PulseClient.DefaultSource()
	return err
}

func (r *Recorder) ListDevices(
	ctx context.Context,
) ([]types.Descriptor, error) {
	source, err := r.PulseClient.DefaultSource()
	if err != nil {
		return nil, types.DeviceError{Op: "list-devices", Err: err}
	}
	// Pulse routes through the default source; per-index selection is left
	// to the portaudio backend.
	return []types.Descriptor{{
		ID:                types.DefaultDevice,
		Name:              source.Name(),
		MaxInputChannels:  1,
		DefaultSampleRate: audio.SampleRate(source.SampleRate()),
		DefaultInput:      true,
	}}, nil
}

func (r *Recorder) OpenInputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
	chunkFrames int,
) (_ types.InputStream, _err error) {
	if deviceID != types.DefaultDevice {
		return nil, types.DeviceError{
			Op:  "open-input-stream",
			Err: fmt.Errorf("the pulse backend only supports the default device, requested %d", deviceID),
		}
	}

	s := &InputStream{
		chunkBytes: chunkFrames * 4,
		dataCh:     make(chan []byte, 64),
		done:       make(chan struct{}),
	}
	stream, err := r.PulseClient.NewRecord(
		&pulseWriter{stream: s},
		pulse.RecordSampleRate(int(sampleRate)),
		pulse.RecordChannels(proto.ChannelMap{proto.ChannelMono}),
	)
	if err != nil {
		return nil, types.DeviceError{Op: "open-input-stream", Err: fmt.Errorf("unable to initialize a record stream: %w", err)}
	}

	stream.Start()
	if stream.Error() != nil {
		return nil, types.DeviceError{Op: "open-input-stream", Err: fmt.Errorf("an error occurred during recording: %w", stream.Error())}
	}
	s.stream = stream
	return s, nil
}

type InputStream struct {
	stream     *pulse.RecordStream
	chunkBytes int
	dataCh     chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	leftover   []byte
}

var _ types.InputStream = (*InputStream)(nil)

func (s *InputStream) ReadChunk(
	ctx context.Context,
) ([]float64, error) {
	for len(s.leftover) < s.chunkBytes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, types.DeviceError{Op: "read", Err: fmt.Errorf("the stream is closed")}
		case data := <-s.dataCh:
			s.leftover = append(s.leftover, data...)
		}
	}
	chunk := audio.Float32LEToSamples(s.leftover[:s.chunkBytes])
	s.leftover = s.leftover[s.chunkBytes:]
	return chunk, nil
}

func (s *InputStream) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.stream.Stop()
	s.stream.Close()
	return
}

type pulseWriter struct {
	stream *InputStream
}

var _ pulse.Writer = (*pulseWriter)(nil)

func (w *pulseWriter) Format() byte {
	return proto.FormatFloat32LE
}

func (w *pulseWriter) Write(p []byte) (int, error) {
	// pulse reuses the buffer, hand a copy over
	data := make([]byte, len(p))
	copy(data, p)
	select {
	case w.stream.dataCh <- data:
		return len(p), nil
	case <-w.stream.done:
		return 0, fmt.Errorf("the stream is closed")
	}
}
