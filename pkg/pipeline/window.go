package pipeline

import (
	"sync"
	"time"

	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
)

// rollingWindow keeps the most recent raw (pre-suppression) audio for the
// adaptive profile refresh. Samples are stored as float32le bytes in a
// circular buffer; the oldest audio is evicted when the window is full.
type rollingWindow struct {
	locker   sync.Mutex
	buf      *circular.Buffer
	capacity int // bytes
	filled   int // bytes
}

func newRollingWindow(capacitySamples int) *rollingWindow {
	capBytes := capacitySamples * 4
	return &rollingWindow{
		buf:      circular.NewBuffer(capBytes),
		capacity: capBytes,
	}
}

func (w *rollingWindow) Append(samples []float64) {
	data := audio.SamplesToFloat32LE(samples)
	w.locker.Lock()
	defer w.locker.Unlock()
	if len(data) >= w.capacity {
		w.discard(w.filled)
		data = data[len(data)-w.capacity:]
	} else if overflow := w.filled + len(data) - w.capacity; overflow > 0 {
		w.discard(overflow)
	}
	for len(data) > 0 {
		n, err := w.buf.Write(data)
		w.filled += n
		data = data[n:]
		if err != nil {
			return
		}
	}
}

// discard drops the oldest n bytes. The locker should already be held.
func (w *rollingWindow) discard(n int) {
	if n <= 0 {
		return
	}
	scratch := make([]byte, n)
	for n > 0 {
		r, err := w.buf.Read(scratch[:n])
		w.filled -= r
		n -= r
		if err != nil || r == 0 {
			return
		}
	}
}

// Snapshot returns the whole window as samples without consuming it.
func (w *rollingWindow) Snapshot() []float64 {
	w.locker.Lock()
	defer w.locker.Unlock()
	data := make([]byte, w.filled)
	got := 0
	for got < len(data) {
		n, err := w.buf.Read(data[got:])
		got += n
		if err != nil || n == 0 {
			break
		}
	}
	data = data[:got]
	for rest := data; len(rest) > 0; {
		n, err := w.buf.Write(rest)
		rest = rest[n:]
		if err != nil {
			break
		}
	}
	return audio.Float32LEToSamples(data)
}

func (w *rollingWindow) Duration(sampleRate audio.SampleRate) time.Duration {
	w.locker.Lock()
	defer w.locker.Unlock()
	return sampleRate.DurationForSamples(w.filled / 4)
}
