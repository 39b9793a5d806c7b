// Package source normalizes image, video-file, and RTSP inputs into one
// uniform sequence of timestamped frames.
//
// Backpressure differs by kind: live sources drop frames rather than block
// (freshness over completeness), offline sources block the caller so no frame
// of a batch job is ever lost.
package source

import (
	"context"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Kind identifies the source flavor.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindRTSP  Kind = "rtsp"
)

// Source produces frames into a channel owned by the caller.
type Source interface {
	ID() string
	Kind() Kind

	// Run delivers frames to out until the source is exhausted or ctx is
	// cancelled. Run closes nothing; the caller owns out. A nil return means
	// normal end of sequence (finite sources) or cancellation.
	Run(ctx context.Context, out chan<- domain.Frame) error
}

// FrameConn is one open connection delivering raw encoded frames.
type FrameConn interface {
	// ReadFrame returns the next encoded frame. Implementations must honor
	// ctx cancellation and bounded read timeouts.
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a FrameConn for a stream URL. Abstracted so the reconnect
// state machine is testable without a live stream.
type Dialer interface {
	Dial(ctx context.Context, url string) (FrameConn, error)
}
