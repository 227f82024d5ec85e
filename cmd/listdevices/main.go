package main

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/noiseprofile/pkg/device"
	_ "github.com/xaionaro-go/noiseprofile/pkg/device/backends/portaudio"
	_ "github.com/xaionaro-go/noiseprofile/pkg/device/backends/pulseaudio"
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	pflag.Parse()

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	recorder := device.NewRecorderAuto(ctx)
	defer recorder.Close()

	devices, err := recorder.ListDevices(ctx)
	assertNoError(err)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "In", "Out", "Rate", "Default"})
	for _, d := range devices {
		defaultMark := ""
		switch {
		case d.DefaultInput && d.DefaultOutput:
			defaultMark = "in+out"
		case d.DefaultInput:
			defaultMark = "in"
		case d.DefaultOutput:
			defaultMark = "out"
		}
		table.Append([]string{
			fmt.Sprintf("%d", d.ID),
			d.Name,
			fmt.Sprintf("%d", d.MaxInputChannels),
			fmt.Sprintf("%d", d.MaxOutputChannels),
			fmt.Sprintf("%d", d.DefaultSampleRate),
			defaultMark,
		})
	}
	table.Render()
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
