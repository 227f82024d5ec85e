package codec

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

func loadWAV(
	ctx context.Context,
	path string,
) ([]float64, audio.SampleRate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to read '%s': %w", path, err)
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, 0, UnsupportedFormatError{Path: path, Format: "not a RIFF/WAVE file"}
	}

	var (
		format     uint16
		channels   audio.Channel
		sampleRate audio.SampleRate
		bits       uint16
		data       []byte
	)

	pos := 12
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := raw[pos+8:]
		if chunkSize > len(body) {
			chunkSize = len(body)
		}
		body = body[:chunkSize]
		switch chunkID {
		case "fmt ":
			if len(body) < 16 {
				return nil, 0, fmt.Errorf("malformed fmt chunk of size %d in '%s'", len(body), path)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = audio.Channel(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = audio.SampleRate(binary.LittleEndian.Uint32(body[4:8]))
			bits = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			data = body
		}
		pos += 8 + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunk bodies are word-aligned
		}
	}

	if data == nil || sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("no playable audio found in '%s'", path)
	}

	var interleaved []float64
	switch {
	case format == wavFormatPCM && bits == 16:
		interleaved = make([]float64, len(data)/2)
		for idx := range interleaved {
			interleaved[idx] = audio.S16ToSample(int16(binary.LittleEndian.Uint16(data[idx*2:])))
		}
	case format == wavFormatIEEEFloat && bits == 32:
		interleaved = audio.Float32LEToSamples(data)
	default:
		return nil, 0, UnsupportedFormatError{
			Path:   path,
			Format: fmt.Sprintf("WAV format:%d bits:%d", format, bits),
		}
	}

	return audio.DownmixMono(interleaved, channels), sampleRate, nil
}

func saveWAV(
	ctx context.Context,
	path string,
	samples []float64,
	sampleRate audio.SampleRate,
) (_err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create '%s': %w", path, err)
	}
	w, err := NewWAVWriter(file, sampleRate)
	if err != nil {
		file.Close()
		return err
	}
	if err := w.WriteSamples(samples); err != nil {
		w.Close()
		file.Close()
		return err
	}
	if err := w.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WAVWriter writes a mono 16bit PCM WAV incrementally: the header is written
// with placeholder sizes and patched on Close, so file sinks can stream chunk
// by chunk instead of buffering the whole session.
type WAVWriter struct {
	ws      io.WriteSeeker
	counter *datacounter.WriterCounter
	headPos int64
	closed  bool
}

func NewWAVWriter(
	ws io.WriteSeeker,
	sampleRate audio.SampleRate,
) (*WAVWriter, error) {
	headPos, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("unable to find the current file position: %w", err)
	}
	w := &WAVWriter{
		ws:      ws,
		counter: datacounter.NewWriterCounter(ws),
		headPos: headPos,
	}
	if err := w.writeHeader(sampleRate, math.MaxUint32); err != nil {
		return nil, fmt.Errorf("unable to write the WAV header: %w", err)
	}
	return w, nil
}

func (w *WAVWriter) writeHeader(sampleRate audio.SampleRate, dataSize uint32) error {
	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate)*2)
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)
	_, err := w.ws.Write(header[:])
	return err
}

func (w *WAVWriter) WriteSamples(samples []float64) error {
	if w.closed {
		return fmt.Errorf("the writer is already closed")
	}
	buf := make([]byte, len(samples)*2)
	for idx, sample := range samples {
		binary.LittleEndian.PutUint16(buf[idx*2:], uint16(audio.SampleToS16(sample)))
	}
	n, err := w.counter.Write(buf)
	if err != nil {
		return fmt.Errorf("unable to write %d bytes of PCM: %w", len(buf), err)
	}
	if n != len(buf) {
		return fmt.Errorf("wrote %d bytes instead of %d", n, len(buf))
	}
	return nil
}

// BytesWritten reports the amount of payload bytes written so far. The
// header is written around the counter and is not included.
func (w *WAVWriter) BytesWritten() uint64 {
	return w.counter.Count()
}

// Close patches the header with the final sizes. The underlying WriteSeeker
// is not closed.
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	dataSize := w.counter.Count()
	if dataSize > math.MaxUint32-36 {
		return fmt.Errorf("the stream is too long for a WAV container: %d bytes", dataSize)
	}
	if _, err := w.ws.Seek(w.headPos, io.SeekStart); err != nil {
		return fmt.Errorf("unable to seek back to the header: %w", err)
	}

	var sizes [4]byte
	binary.LittleEndian.PutUint32(sizes[:], 36+uint32(dataSize))
	if _, err := w.ws.Seek(w.headPos+4, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.ws.Write(sizes[:]); err != nil {
		return fmt.Errorf("unable to patch the RIFF size: %w", err)
	}

	binary.LittleEndian.PutUint32(sizes[:], uint32(dataSize))
	if _, err := w.ws.Seek(w.headPos+40, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.ws.Write(sizes[:]); err != nil {
		return fmt.Errorf("unable to patch the data size: %w", err)
	}
	_, err := w.ws.Seek(0, io.SeekEnd)
	return err
}
