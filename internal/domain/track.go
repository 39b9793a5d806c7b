package domain

import (
	"time"

	"github.com/google/uuid"
)

// TrackState is the lifecycle state of a track.
type TrackState string

const (
	// TrackOpen is actively receiving detections, no match yet.
	TrackOpen TrackState = "open"
	// TrackPendingEmit is matched; emission happens synchronously on entry.
	TrackPendingEmit TrackState = "pending_emit"
	// TrackEmitted has fired its event and is kept to suppress duplicates.
	TrackEmitted TrackState = "emitted"
	// TrackClosed timed out and is evicted from the active map.
	TrackClosed TrackState = "closed"
)

// Track links consecutive detections of the same physical face within one
// source. Owned exclusively by the tracker; nothing else mutates it.
type Track struct {
	ID             uuid.UUID
	SourceID       string
	IdentityID     string
	DisplayName    string
	State          TrackState
	FirstSeen      time.Time
	LastSeen       time.Time
	LastSequence   uint64
	LastBox        BoundingBox
	DetectionCount int
	BestSimilarity float64
}
