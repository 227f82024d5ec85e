package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/noiseprofile/pkg/audio"
	"github.com/xaionaro-go/noiseprofile/pkg/codec"
	"github.com/xaionaro-go/noiseprofile/pkg/device"
	_ "github.com/xaionaro-go/noiseprofile/pkg/device/backends/oto"
	_ "github.com/xaionaro-go/noiseprofile/pkg/device/backends/portaudio"
	_ "github.com/xaionaro-go/noiseprofile/pkg/device/backends/pulseaudio"
	"github.com/xaionaro-go/noiseprofile/pkg/noisesuppression/implementations/spectralgate"
	"github.com/xaionaro-go/noiseprofile/pkg/pipeline"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
	"github.com/xaionaro-go/observability"
)

func main() {
	// a .env file may pre-set the defaults of the realtime parameters
	_ = godotenv.Load()

	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	outputMode := pflag.String("mode", envString("DENOISE_OUTPUT_MODE", "stream"), "output mode: file, stream or stream+file")
	outputPath := pflag.String("output", envString("DENOISE_OUTPUT_PATH", ""), "output WAV path (required for the file modes)")
	deviceID := pflag.Int("device", envInt("DENOISE_DEVICE", device.DefaultDevice), "capture device index (-1: system default)")
	sampleRateFlag := pflag.Uint32("sample-rate", uint32(envInt("DENOISE_SAMPLE_RATE", int(pipeline.DefaultSampleRate))), "capture sample rate, Hz")
	chunkDuration := pflag.Duration("chunk-duration", envDuration("DENOISE_CHUNK_DURATION", pipeline.DefaultChunkDuration), "processing chunk length")
	profileFlag := pflag.String("profile", envString("DENOISE_PROFILE", "adaptive"), "noise profile method: first_X, last_X, adaptive or a path to a noise sample file")
	silenceThreshold := pflag.Float64("silence-threshold", 0.01, "maximal RMS for a window to count as silence (adaptive profile)")
	minSilence := pflag.Duration("min-silence", 500*time.Millisecond, "minimal length of a silence region (adaptive profile)")
	refreshChunks := pflag.Uint64("refresh-chunks", pipeline.DefaultRefreshChunks, "re-extract an adaptive profile every that many chunks (0: never)")
	duration := pflag.Duration("duration", 0, "stop capturing after that long (0: until interrupted)")
	saveRaw := pflag.Bool("save-raw", false, "also save the unprocessed audio next to the output")
	putTimeout := pflag.Duration("put-timeout", 0, "drop a chunk when the capture buffer stays full for that long (0: block)")
	bufferCapacity := pflag.Int("buffer-capacity", pipeline.DefaultBufferCapacity, "capture buffer capacity, in chunks")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	mode, err := pipeline.ParseOutputMode(*outputMode)
	assertNoError(err)
	method, err := profile.ParseMethod(*profileFlag, *silenceThreshold, *minSilence)
	assertNoError(err)
	sampleRate := audio.SampleRate(*sampleRateFlag)

	recorder := device.NewRecorderAuto(ctx)
	defer recorder.Close()
	logger.Infof(ctx, "capturing through %T", recorder)

	stream, err := recorder.OpenInputStream(ctx, *deviceID, sampleRate, sampleRate.SamplesForDuration(*chunkDuration))
	assertNoError(err)

	suppressor := spectralgate.New(spectralgate.Config{})
	defer suppressor.Close()

	cfg := pipeline.Config{
		SampleRate:     sampleRate,
		ChunkDuration:  *chunkDuration,
		Method:         method,
		OutputMode:     mode,
		OutputPath:     *outputPath,
		SaveRaw:        *saveRaw,
		Duration:       *duration,
		RefreshChunks:  *refreshChunks,
		BufferCapacity: *bufferCapacity,
		PutTimeout:     *putTimeout,
	}
	p, err := pipeline.New(cfg, stream, suppressor, codec.NewAuto())
	assertNoError(err)

	sess, err := p.Start(ctx)
	assertNoError(err)
	logger.Infof(ctx, "session %s started, interrupt to stop", sess.ID)

	sigCtx, cancelFunc := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFunc()
	observability.Go(ctx, func() {
		<-sigCtx.Done()
		logger.Infof(ctx, "stopping...")
		sess.Stop()
	})

	playbackDone := make(chan struct{})
	if mode.HasStream() {
		player := device.NewPlayerAuto(ctx)
		defer player.Close()
		logger.Infof(ctx, "playing through %T", player)
		out, err := player.OpenOutputStream(ctx, device.DefaultDevice, sampleRate)
		assertNoError(err)
		observability.Go(ctx, func() {
			defer close(playbackDone)
			if err := pipeline.PlayProcessed(ctx, sess, out); err != nil {
				logger.Errorf(ctx, "playback stopped: %v", err)
			}
			if err := out.Close(); err != nil {
				logger.Warnf(ctx, "unable to close the playback stream: %v", err)
			}
		})
	} else {
		close(playbackDone)
	}

	result, err := sess.Wait(ctx)
	assertNoError(err)
	<-playbackDone
	logger.Debugf(ctx, "result: %s", spew.Sdump(result))
	assertNoError(result.Err)

	if result.Profile != nil {
		logger.Infof(ctx, "noise profile: %s (%d fallbacks, %d refreshes)",
			*result.Profile, result.ProfileFallbacks, result.ProfileRefreshes)
	}
	for _, failure := range result.SinkFailures {
		logger.Warnf(ctx, "the '%s' sink was lost: %v", failure.Sink, failure.Err)
	}
	logger.Infof(ctx, "processed %d chunks (%d dropped, %d suppression failures)",
		result.ChunksProcessed, result.ChunksDropped, result.SuppressionFailures)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
