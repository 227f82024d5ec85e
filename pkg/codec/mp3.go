package codec

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

func loadMP3(
	ctx context.Context,
	path string,
) ([]float64, audio.SampleRate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to open '%s': %w", path, err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return nil, 0, UnsupportedFormatError{Path: path, Format: fmt.Sprintf("mp3: %v", err)}
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("unable to decode '%s': %w", path, err)
	}

	// go-mp3 always emits 16bit stereo.
	interleaved := make([]float64, len(raw)/2)
	for idx := range interleaved {
		interleaved[idx] = audio.S16ToSample(int16(binary.LittleEndian.Uint16(raw[idx*2:])))
	}

	return audio.DownmixMono(interleaved, 2), audio.SampleRate(decoder.SampleRate()), nil
}
