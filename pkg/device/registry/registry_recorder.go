// Package registry keeps the device backends registered with priorities, so
// that the most specific backend available on a host wins.
package registry

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/xaionaro-go/noiseprofile/pkg/device/types"
)

type RecorderFactory interface {
	NewRecorder() (types.Recorder, error)
}

type recorderFactoryWithPriority struct {
	Priority int
	RecorderFactory
}

var recorderFactoryRegistry = map[reflect.Type]recorderFactoryWithPriority{}

func RegisterRecorderFactory(
	priority int,
	recorderFactory RecorderFactory,
) {
	t := reflect.ValueOf(recorderFactory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := recorderFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of Recorder of type %v", t))
	}
	recorderFactoryRegistry[t] = recorderFactoryWithPriority{
		Priority:        priority,
		RecorderFactory: recorderFactory,
	}
}

func RecorderFactories() []RecorderFactory {
	var factoriesWithPriorities []recorderFactoryWithPriority
	for _, factory := range recorderFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	sort.Slice(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []RecorderFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.RecorderFactory)
	}

	return factories
}
