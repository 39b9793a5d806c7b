package source

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// StreamState is the RTSP connection lifecycle state.
type StreamState int32

const (
	StateConnecting StreamState = iota
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// RTSP is an infinite source driven by an explicit connection state machine.
// Read failures trigger reconnection with exponential backoff, capped but
// retried without bound until cancelled. Sequence numbers keep increasing
// across reconnects; the first frame after a reconnect or a backpressure drop
// carries a gap flag so the tracker can close stale tracks sooner.
type RTSP struct {
	id       string
	url      string
	dialer   Dialer
	logger   *slog.Logger
	maxDelay time.Duration

	state   atomic.Int32
	dropped atomic.Uint64
}

func NewRTSP(id, url string, dialer Dialer, logger *slog.Logger, maxDelay time.Duration) *RTSP {
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &RTSP{
		id:       id,
		url:      url,
		dialer:   dialer,
		logger:   logger,
		maxDelay: maxDelay,
	}
}

func (s *RTSP) ID() string { return s.id }
func (s *RTSP) Kind() Kind { return KindRTSP }

// State returns the current connection state.
func (s *RTSP) State() StreamState {
	return StreamState(s.state.Load())
}

// Dropped returns the number of frames discarded under backpressure.
func (s *RTSP) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *RTSP) Run(ctx context.Context, out chan<- domain.Frame) error {
	defer s.state.Store(int32(StateStopped))

	var (
		seq        uint64
		gapPending bool
		delay      = time.Second
	)

	s.state.Store(int32(StateConnecting))

	for {
		conn, err := s.dialer.Dial(ctx, s.url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.state.Store(int32(StateReconnecting))
			s.logger.Warn("stream connect failed",
				"source", s.id,
				"retry_in", delay,
				"error", domain.ErrSourceUnavailable.WithError(err),
			)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			delay = nextDelay(delay, s.maxDelay)
			continue
		}

		s.state.Store(int32(StateStreaming))
		delay = time.Second
		if seq > 0 {
			// Frames were lost while disconnected.
			gapPending = true
		}

		err = s.stream(ctx, conn, out, &seq, &gapPending)
		_ = conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.state.Store(int32(StateReconnecting))
		s.logger.Warn("stream read failed, reconnecting",
			"source", s.id,
			"retry_in", delay,
			"error", err,
		)
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
		delay = nextDelay(delay, s.maxDelay)
	}
}

// stream pumps frames until a read error. Delivery never blocks: a full
// downstream drops the frame and flags a gap on the next delivered one.
func (s *RTSP) stream(ctx context.Context, conn FrameConn, out chan<- domain.Frame, seq *uint64, gapPending *bool) error {
	for {
		image, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}

		frame := domain.Frame{
			SourceID:  s.id,
			Timestamp: time.Now().UTC(),
			Sequence:  *seq,
			Image:     image,
			GapBefore: *gapPending,
		}
		*seq++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- frame:
			*gapPending = false
		default:
			s.dropped.Add(1)
			*gapPending = true
		}
	}
}

func nextDelay(current, maxDelay time.Duration) time.Duration {
	next := current * 2
	if next > maxDelay {
		return maxDelay
	}
	return next
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
