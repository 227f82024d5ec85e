package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/noiseprofile/pkg/codec"
	"github.com/xaionaro-go/noiseprofile/pkg/noisesuppression/implementations/spectralgate"
	"github.com/xaionaro-go/noiseprofile/pkg/pipeline"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
	"github.com/xaionaro-go/observability"
)

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	profileFlag := pflag.String("profile", "adaptive", "noise profile method: first_X, last_X, adaptive or a path to a noise sample file")
	silenceThreshold := pflag.Float64("silence-threshold", 0.01, "maximal RMS for a window to count as silence (adaptive profile)")
	minSilence := pflag.Duration("min-silence", 500*time.Millisecond, "minimal length of a silence region (adaptive profile)")
	chunkDuration := pflag.Duration("chunk-duration", pipeline.DefaultChunkDuration, "processing chunk length")
	duration := pflag.Duration("duration", 0, "limit how much of the input is processed (0: everything)")
	saveRaw := pflag.Bool("save-raw", false, "also save the unprocessed audio next to the output")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if pflag.NArg() != 2 {
		panic(fmt.Errorf("expected exactly two arguments: <input-file> <output-file>"))
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	method, err := profile.ParseMethod(*profileFlag, *silenceThreshold, *minSilence)
	assertNoError(err)

	loader := codec.NewAuto()
	samples, sampleRate, err := loader.Load(ctx, pflag.Arg(0))
	assertNoError(err)
	logger.Infof(ctx, "loaded '%s': %d samples at %d Hz", pflag.Arg(0), len(samples), sampleRate)

	suppressor := spectralgate.New(spectralgate.Config{})
	defer suppressor.Close()

	cfg := pipeline.Config{
		SampleRate:    sampleRate,
		ChunkDuration: *chunkDuration,
		Method:        method,
		OutputMode:    pipeline.OutputModeFile,
		OutputPath:    pflag.Arg(1),
		SaveRaw:       *saveRaw,
		Duration:      *duration,
	}
	source := pipeline.NewBufferSource(samples, sampleRate, sampleRate.SamplesForDuration(*chunkDuration))
	p, err := pipeline.New(cfg, source, suppressor, loader)
	assertNoError(err)

	sess, err := p.Start(ctx)
	assertNoError(err)

	sigCtx, cancelFunc := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFunc()
	observability.Go(ctx, func() {
		<-sigCtx.Done()
		sess.Stop()
	})

	result, err := sess.Wait(ctx)
	assertNoError(err)
	logger.Debugf(ctx, "result: %s", spew.Sdump(result))
	assertNoError(result.Err)

	if result.Profile != nil {
		logger.Infof(ctx, "noise profile: %s", *result.Profile)
	}
	logger.Infof(ctx, "processed %d chunks (%d dropped, %d suppression failures), wrote %d bytes to '%s'",
		result.ChunksProcessed, result.ChunksDropped, result.SuppressionFailures, result.BytesWritten, pflag.Arg(1))
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
