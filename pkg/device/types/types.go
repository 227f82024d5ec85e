// Package types holds the interfaces of the audio device boundary. Backends
// implement them; the registry keeps them decoupled from the selection logic.
package types

import (
	"context"
	"fmt"
	"io"

	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

// DefaultDevice selects the system default input or output device.
const DefaultDevice = -1

type Descriptor struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate audio.SampleRate
	DefaultInput      bool
	DefaultOutput     bool
}

// InputStream yields captured mono chunks.
type InputStream interface {
	io.Closer

	// ReadChunk blocks until the next chunk is captured or the context is
	// cancelled.
	ReadChunk(ctx context.Context) ([]float64, error)
}

// OutputStream accepts mono samples for playback.
type OutputStream interface {
	io.Closer

	WriteSamples(ctx context.Context, samples []float64) error
}

type Recorder interface {
	io.Closer

	Ping(ctx context.Context) error
	ListDevices(ctx context.Context) ([]Descriptor, error)
	OpenInputStream(
		ctx context.Context,
		deviceID int,
		sampleRate audio.SampleRate,
		chunkFrames int,
	) (InputStream, error)
}

type Player interface {
	io.Closer

	Ping(ctx context.Context) error
	OpenOutputStream(
		ctx context.Context,
		deviceID int,
		sampleRate audio.SampleRate,
	) (OutputStream, error)
}

// DeviceError wraps a backend failure with the operation that triggered it.
type DeviceError struct {
	Op  string
	Err error
}

func (err DeviceError) Error() string {
	return fmt.Sprintf("device failure during %s: %v", err.Op, err.Err)
}

func (err DeviceError) Unwrap() error {
	return err.Err
}
