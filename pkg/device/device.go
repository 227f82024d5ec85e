// Package device is the boundary to the host's audio hardware: capture and
// playback streams over whichever backend (pulseaudio, portaudio, oto) works
// on this machine.
package device

import (
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

const DefaultDevice = types.DefaultDevice

type (
	Descriptor   = types.Descriptor
	InputStream  = types.InputStream
	OutputStream = types.OutputStream
	Recorder     = types.Recorder
	Player       = types.Player
	DeviceError  = types.DeviceError
)
