package pipeline

import (
	"errors"
	"fmt"
)

// ErrAllSinksFailed is returned when every configured output sink is gone;
// at that point continuing the session would discard audio silently.
var ErrAllSinksFailed = errors.New("all the output sinks failed")

// SinkWriteError is fatal for the affected sink only; the session keeps
// streaming to the remaining sinks.
type SinkWriteError struct {
	Sink string
	Err  error
}

func (err SinkWriteError) Error() string {
	return fmt.Sprintf("unable to write to the '%s' sink: %v", err.Sink, err.Err)
}

func (err SinkWriteError) Unwrap() error {
	return err.Err
}
