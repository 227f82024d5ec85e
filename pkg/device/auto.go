package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/noiseprofile/pkg/device/registry"
)

var (
	lastSuccessfulRecorderFactory       registry.RecorderFactory
	lastSuccessfulRecorderFactoryLocker sync.Mutex
)

func getLastSuccessfulRecorderFactory() registry.RecorderFactory {
	lastSuccessfulRecorderFactoryLocker.Lock()
	defer lastSuccessfulRecorderFactoryLocker.Unlock()
	return lastSuccessfulRecorderFactory
}

// NewRecorderAuto probes the registered backends in priority order and
// returns the first one that answers a Ping. A dummy recorder is returned
// when nothing works, so callers may still run (capturing silence).
func NewRecorderAuto(
	ctx context.Context,
) Recorder {
	factory := getLastSuccessfulRecorderFactory()
	if factory != nil {
		recorder, err := factory.NewRecorder()
		if err == nil {
			if err := recorder.Ping(ctx); err == nil {
				return recorder
			}
			recorder.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.RecorderFactories() {
		recorder, err := factory.NewRecorder()
		logger.Debugf(ctx, "initializing recorder %T result is %v", recorder, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", recorder, err))
			continue
		}

		err = recorder.Ping(ctx)
		logger.Debugf(ctx, "pinging recorder %T result is %v", recorder, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", recorder, err))
			recorder.Close()
			continue
		}

		lastSuccessfulRecorderFactoryLocker.Lock()
		defer lastSuccessfulRecorderFactoryLocker.Unlock()
		lastSuccessfulRecorderFactory = factory
		return recorder
	}

	logger.Infof(ctx, "was unable to initialize any recorder: %v", mErr.ErrorOrNil())
	return RecorderDummy{}
}

var (
	lastSuccessfulPlayerFactory       registry.PlayerFactory
	lastSuccessfulPlayerFactoryLocker sync.Mutex
)

func getLastSuccessfulPlayerFactory() registry.PlayerFactory {
	lastSuccessfulPlayerFactoryLocker.Lock()
	defer lastSuccessfulPlayerFactoryLocker.Unlock()
	return lastSuccessfulPlayerFactory
}

// NewPlayerAuto is the playback counterpart of NewRecorderAuto.
func NewPlayerAuto(
	ctx context.Context,
) Player {
	factory := getLastSuccessfulPlayerFactory()
	if factory != nil {
		player, err := factory.NewPlayer()
		if err == nil {
			if err := player.Ping(ctx); err == nil {
				return player
			}
			player.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range registry.PlayerFactories() {
		player, err := factory.NewPlayer()
		logger.Debugf(ctx, "initializing player %T result is %v", player, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", player, err))
			continue
		}

		err = player.Ping(ctx)
		logger.Debugf(ctx, "pinging player %T result is %v", player, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", player, err))
			player.Close()
			continue
		}

		lastSuccessfulPlayerFactoryLocker.Lock()
		defer lastSuccessfulPlayerFactoryLocker.Unlock()
		lastSuccessfulPlayerFactory = factory
		return player
	}

	logger.Infof(ctx, "was unable to initialize any player: %v", mErr.ErrorOrNil())
	return PlayerDummy{}
}
