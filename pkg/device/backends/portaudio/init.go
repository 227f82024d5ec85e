package portaudio

import (
	"github.com/xaionaro-go/noiseprofile/pkg/device/registry"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

const (
	Priority = 60
)

func init() {
	registry.RegisterRecorderFactory(Priority, RecorderFactory{})
	registry.RegisterPlayerFactory(Priority, PlayerFactory{})
}

type RecorderFactory struct{}

func (RecorderFactory) NewRecorder() (types.Recorder, error) {
	return NewRecorder()
}

type PlayerFactory struct{}

func (PlayerFactory) NewPlayer() (types.Player, error) {
	return NewPlayer()
}
