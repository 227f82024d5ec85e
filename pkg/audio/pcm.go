package audio

import (
	"encoding/binary"
	"math"
)

// SamplesToFloat32LE serializes float64 samples as little-endian float32 PCM,
// the wire format our device backends and suppression buffers operate in.
func SamplesToFloat32LE(samples []float64) []byte {
	result := make([]byte, len(samples)*4)
	for idx, sample := range samples {
		binary.LittleEndian.PutUint32(result[idx*4:], math.Float32bits(float32(sample)))
	}
	return result
}

// Float32LEToSamples is the inverse of SamplesToFloat32LE. The tail of the
// input that does not form a whole float32 is ignored.
func Float32LEToSamples(pcm []byte) []float64 {
	result := make([]float64, len(pcm)/4)
	for idx := range result {
		result[idx] = float64(math.Float32frombits(binary.LittleEndian.Uint32(pcm[idx*4:])))
	}
	return result
}

// SampleToS16 converts a normalized sample into a signed 16bit PCM value,
// clipping instead of overflowing.
func SampleToS16(sample float64) int16 {
	v := math.Round(sample * 32768)
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// S16ToSample converts a signed 16bit PCM value into a normalized sample.
func S16ToSample(v int16) float64 {
	return float64(v) / 32768
}

// DownmixMono averages interleaved frames into a single channel.
func DownmixMono(interleaved []float64, channels Channel) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / int(channels)
	result := make([]float64, frames)
	for frameIdx := 0; frameIdx < frames; frameIdx++ {
		var sum float64
		for channelIdx := 0; channelIdx < int(channels); channelIdx++ {
			sum += interleaved[frameIdx*int(channels)+channelIdx]
		}
		result[frameIdx] = sum / float64(channels)
	}
	return result
}

// RMS returns the root-mean-square energy of the samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range samples {
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(len(samples)))
}
