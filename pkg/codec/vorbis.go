package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

func loadVorbis(
	ctx context.Context,
	path string,
) ([]float64, audio.SampleRate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer file.Close()

	oggReader, err := oggvorbis.NewReader(file)
	if err != nil {
		return nil, 0, UnsupportedFormatError{Path: path, Format: fmt.Sprintf("ogg: %v", err)}
	}

	channels := audio.Channel(oggReader.Channels())
	sampleRate := audio.SampleRate(oggReader.SampleRate())

	var interleaved []float64
	buf := make([]float32, 4096)
	for {
		n, err := oggReader.Read(buf)
		for _, sample := range buf[:n] {
			interleaved = append(interleaved, float64(sample))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("unable to decode '%s': %w", path, err)
		}
	}

	return audio.DownmixMono(interleaved, channels), sampleRate, nil
}
