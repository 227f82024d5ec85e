package oto

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

// Unfortunately, `oto` does not allow to initialize a context multiple
// times, so the first opened stream pins the sample rate for the whole
// process and later requests for a different rate are rejected.
var (
	otoOnce       sync.Once
	otoCtx        *oto.Context
	otoSampleRate audio.SampleRate
	otoErr        error
)

func getOtoContext(sampleRate audio.SampleRate) (*oto.Context, error) {
	otoOnce.Do(func() {
		var readyCh chan struct{}
		otoCtx, readyCh, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(sampleRate),
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
		})
		if otoErr != nil {
			return
		}
		otoSampleRate = sampleRate
		<-readyCh
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if sampleRate != otoSampleRate {
		return nil, fmt.Errorf("the context is already initialized for rate %d, but received a request for %d", otoSampleRate, sampleRate)
	}
	return otoCtx, nil
}

type Player struct{}

var _ types.Player = (*Player)(nil)

func NewPlayer() (*Player, error) {
	return &Player{}, nil
}

func (*Player) Close() error {
	return nil
}

func (*Player) Ping(context.Context) error {
	// do not know how to do that, yet
	return nil
}

func (*Player) OpenOutputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
) (types.OutputStream, error) {
	if deviceID != types.DefaultDevice {
		return nil, types.DeviceError{
			Op:  "open-output-stream",
			Err: fmt.Errorf("the oto backend only supports the default device, requested %d", deviceID),
		}
	}

	otoCtx, err := getOtoContext(sampleRate)
	if err != nil {
		return nil, types.DeviceError{Op: "open-output-stream", Err: fmt.Errorf("unable to get an oto context: %w", err)}
	}

	pipeR, pipeW := io.Pipe()
	player := otoCtx.NewPlayer(pipeR)
	player.Play()
	return &OutputStream{
		player: player,
		pipeW:  pipeW,
	}, nil
}

type OutputStream struct {
	player *oto.Player
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
	return nil
}

func (s *OutputStream) Close() error {
	s.pipeW.Close()
	for s.player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return s.player.Close()
}
