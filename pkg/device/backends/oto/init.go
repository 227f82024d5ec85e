package oto

import (
	"github.com/xaionaro-go/noiseprofile/pkg/device/registry"
	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

const (
	Priority = 50
)

func init() {
	registry.RegisterPlayerFactory(Priority, PlayerFactory{})
}

type PlayerFactory struct{}

func (PlayerFactory) NewPlayer() (types.Player, error) {
	return NewPlayer()
}
