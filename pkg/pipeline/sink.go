package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
	"github.com/xaionaro-go/noiseprofile/pkg/codec"
)

// Sink receives processed (or raw) chunks in processing order. Sinks are
// owned exclusively by the OutputRouter.
type Sink interface {
	Name() string
	WriteChunk(ctx context.Context, chunk *chunkbuffer.Chunk) error
	BytesWritten() uint64
	Close() error
}

type fileSink struct {
	name   string
	file   *os.File
	writer *codec.WAVWriter
}

var _ Sink = (*fileSink)(nil)

func newFileSink(
	name string,
	path string,
	sampleRate audio.SampleRate,
) (*fileSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create the output file '%s': %w", path, err)
	}
	writer, err := codec.NewWAVWriter(file, sampleRate)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("unable to initialize a WAV writer for '%s': %w", path, err)
	}
	return &fileSink{
		name:   name,
		file:   file,
		writer: writer,
	}, nil
}

func (s *fileSink) Name() string {
	return s.name
}

func (s *fileSink) WriteChunk(
	ctx context.Context,
	chunk *chunkbuffer.Chunk,
) error {
	if err := s.writer.WriteSamples(chunk.Samples); err != nil {
		return SinkWriteError{Sink: s.name, Err: err}
	}
	return nil
}

func (s *fileSink) BytesWritten() uint64 {
	return s.writer.BytesWritten()
}

func (s *fileSink) Close() error {
	var result *multierror.Error
	if err := s.writer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to finalize the WAV file: %w", err))
	}
	if err := s.file.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to close the file: %w", err))
	}
	return result.ErrorOrNil()
}

// streamSink feeds a bounded playback queue. Backpressure drops are
// accounted in the queue's own counter, they are not sink failures.
type streamSink struct {
	name       string
	buf        *chunkbuffer.Buffer
	putTimeout time.Duration
}

var _ Sink = (*streamSink)(nil)

func newStreamSink(
	name string,
	buf *chunkbuffer.Buffer,
	putTimeout time.Duration,
) *streamSink {
	return &streamSink{
		name:       name,
		buf:        buf,
		putTimeout: putTimeout,
	}
}

func (s *streamSink) Name() string {
	return s.name
}

func (s *streamSink) WriteChunk(
	ctx context.Context,
	chunk *chunkbuffer.Chunk,
) error {
	err := s.buf.Put(ctx, chunk, s.putTimeout)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chunkbuffer.ErrDropped):
		logger.Warnf(ctx, "the playback queue is full, dropped chunk %d", chunk.Seq)
		return nil
	default:
		return SinkWriteError{Sink: s.name, Err: err}
	}
}

func (s *streamSink) BytesWritten() uint64 {
	return 0
}

func (s *streamSink) Close() error {
	s.buf.Close()
	return nil
}
