package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted exactly once per matched track lifetime, at the moment the
// track first crosses the emission threshold. Immutable after creation.
type Event struct {
	ID             uuid.UUID   `json:"event_id"`
	TrackID        uuid.UUID   `json:"track_id"`
	IdentityID     string      `json:"identity_id"`
	DisplayName    string      `json:"display_name"`
	SourceID       string      `json:"camera_id"`
	Similarity     float64     `json:"similarity_score"`
	TimestampStart time.Time   `json:"timestamp_start"`
	TimestampEnd   time.Time   `json:"timestamp_end"`
	EvidenceSeq    uint64      `json:"evidence_frame,omitempty"`
	EvidenceBox    BoundingBox `json:"-"`
}

// NewEventFromTrack freezes the track's matched state into an event.
func NewEventFromTrack(t *Track) Event {
	return Event{
		ID:             uuid.New(),
		TrackID:        t.ID,
		IdentityID:     t.IdentityID,
		DisplayName:    t.DisplayName,
		SourceID:       t.SourceID,
		Similarity:     t.BestSimilarity,
		TimestampStart: t.FirstSeen,
		TimestampEnd:   t.LastSeen,
		EvidenceSeq:    t.LastSequence,
		EvidenceBox:    t.LastBox,
	}
}
