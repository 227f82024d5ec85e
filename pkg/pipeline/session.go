package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/frostbyte73/core"
	"github.com/google/uuid"
	"github.com/xaionaro-go/noiseprofile/pkg/chunkbuffer"
	"github.com/xaionaro-go/noiseprofile/pkg/profile"
)

// Session is the aggregate root of one run. It is created by Pipeline.Start,
// mutated only by the pipeline workers, and discarded when the run ends.
type Session struct {
	ID  uuid.UUID
	cfg Config

	state          atomic.Uint32
	currentProfile atomic.Pointer[profile.Profile]
	stop           core.Fuse

	input  *chunkbuffer.Buffer
	output *chunkbuffer.Buffer

	chunksProcessed     atomic.Uint64
	suppressionFailures atomic.Uint64
	profileFallbacks    atomic.Uint64
	profileRefreshes    atomic.Uint64

	// captureErr is written by the capture worker before it exits and read
	// only after that worker finished.
	captureErr error

	done   chan struct{}
	result Result
}

func newSession(cfg Config) *Session {
	sess := &Session{
		ID:    uuid.New(),
		cfg:   cfg,
		input: chunkbuffer.New(cfg.BufferCapacity),
		done:  make(chan struct{}),
	}
	if cfg.OutputMode.HasStream() {
		sess.output = chunkbuffer.New(cfg.BufferCapacity)
	}
	return sess
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(uint32(state))
}

// compareAndSetState transitions only when the current state matches;
// it reports whether the transition happened.
func (s *Session) compareAndSetState(from, to State) bool {
	return s.state.CompareAndSwap(uint32(from), uint32(to))
}

// Profile returns the profile the next chunk would be processed against.
// It is nil until the initial profiling succeeds.
func (s *Session) Profile() *profile.Profile {
	return s.currentProfile.Load()
}

// Output is the processed-chunk stream in the 'stream' output modes,
// nil otherwise. It is closed when the session ends.
func (s *Session) Output() *chunkbuffer.Buffer {
	return s.output
}

// Stop requests a graceful shutdown: capture ends, the buffered chunks are
// drained through suppression and output. Idempotent.
func (s *Session) Stop() {
	s.stop.Break()
}

// Done is closed when the session reached a terminal state and the Result
// became available.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends and returns its Result.
func (s *Session) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return &s.result, nil
	}
}

// Result reports what actually happened during a run; degradations
// (fallbacks, drops, lost sinks) are accounted here rather than silently
// swallowed.
type Result struct {
	ChunksProcessed     uint64
	ChunksDropped       uint64
	SuppressionFailures uint64
	ProfileFallbacks    uint64
	ProfileRefreshes    uint64
	SinkFailures        []SinkFailure
	BytesWritten        uint64
	RawBytesWritten     uint64

	// Profile is the metadata of the profile active when the session ended.
	Profile *profile.Metadata

	// Err is set when the session ended in the error state.
	Err error
}

// SinkFailure records a sink lost mid-session.
type SinkFailure struct {
	Sink string
	Err  error
}
