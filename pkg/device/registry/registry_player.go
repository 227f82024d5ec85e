package registry

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

type PlayerFactory interface {
	NewPlayer() (types.Player, error)
}

type playerFactoryWithPriority struct {
	Priority int
	PlayerFactory
}

var playerFactoryRegistry = map[reflect.Type]playerFactoryWithPriority{}

func RegisterPlayerFactory(
	priority int,
	playerFactory PlayerFactory,
) {
	t := reflect.ValueOf(playerFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := playerFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of Player of type %v", t))
	}
	playerFactoryRegistry[t] = playerFactoryWithPriority{
		Priority:      priority,
		PlayerFactory: playerFactory,
	}
}

func PlayerFactories() []PlayerFactory {
	var factoriesWithPriorities []playerFactoryWithPriority
	for _, factory := range playerFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	sort.Slice(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []PlayerFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.PlayerFactory)
	}

	return factories
}
