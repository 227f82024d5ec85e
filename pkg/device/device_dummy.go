package device

import (
	"context"
	"time"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

// RecorderDummy captures silence at the requested cadence. It keeps sessions
// runnable on hosts without any working audio backend.
type RecorderDummy struct{}

var _ Recorder = RecorderDummy{}

func (RecorderDummy) Close() error {
	return nil
}

func (RecorderDummy) Ping(context.Context) error {
	return nil
}

func (RecorderDummy) ListDevices(context.Context) ([]Descriptor, error) {
	return []Descriptor{{
		ID:               types.DefaultDevice,
		Name:             "dummy",
		MaxInputChannels: 1,
		DefaultInput:     true,
	}}, nil
}

func (RecorderDummy) OpenInputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
	chunkFrames int,
) (InputStream, error) {
	return &inputStreamDummy{
		sampleRate:  sampleRate,
		chunkFrames: chunkFrames,
	}, nil
}

type inputStreamDummy struct {
	sampleRate  audio.SampleRate
	chunkFrames int
}

func (s *inputStreamDummy) ReadChunk(ctx context.Context) ([]float64, error) {
	timer := time.NewTimer(s.sampleRate.DurationForSamples(s.chunkFrames))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return make([]float64, s.chunkFrames), nil
}

func (s *inputStreamDummy) Close() error {
	return nil
}

// PlayerDummy discards everything written to it.
type PlayerDummy struct{}

var _ Player = PlayerDummy{}

func (PlayerDummy) Close() error {
	return nil
}

func (PlayerDummy) Ping(context.Context) error {
	return nil
}

func (PlayerDummy) OpenOutputStream(
	ctx context.Context,
	deviceID int,
	sampleRate audio.SampleRate,
) (OutputStream, error) {
	return outputStreamDummy{}, nil
}

type outputStreamDummy struct{}

func (outputStreamDummy) WriteSamples(context.Context, []float64) error {
	return nil
}

func (outputStreamDummy) Close() error {
	return nil
}
