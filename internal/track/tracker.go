// Package track associates per-frame detections into tracks and decides when
// a track emits an event. One tracker instance per source; the owning
// ingestion flow is the only mutator, so no locking is needed inside.
package track

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// EmitFunc receives the single event fired per matched track lifetime.
// It must not block: dispatch is asynchronous relative to track state.
type EmitFunc func(domain.Event)

// Options tune association and track lifecycle.
type Options struct {
	// IoUThreshold is the minimum box overlap for a detection to join a track.
	IoUThreshold float64
	// MaxFrameGap is how many missed sampled frames are tolerated before a
	// new track is opened instead.
	MaxFrameGap uint64
	// InactivityTimeout closes a track that stopped receiving detections.
	InactivityTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		IoUThreshold:      0.3,
		MaxFrameGap:       1,
		InactivityTimeout: 3 * time.Second,
	}
}

// Tracker holds the active tracks for one source.
type Tracker struct {
	sourceID string
	opts     Options
	emit     EmitFunc
	logger   *slog.Logger
	now      func() time.Time

	tracks map[uuid.UUID]*domain.Track

	active  atomic.Int64
	emitted atomic.Uint64
}

func NewTracker(sourceID string, opts Options, emit EmitFunc, logger *slog.Logger) *Tracker {
	return &Tracker{
		sourceID: sourceID,
		opts:     opts,
		emit:     emit,
		logger:   logger,
		now:      time.Now,
		tracks:   make(map[uuid.UUID]*domain.Track),
	}
}

// ActiveTracks returns the number of non-closed tracks. Safe to call from
// other goroutines (stats surface).
func (t *Tracker) ActiveTracks() int64 {
	return t.active.Load()
}

// EventsEmitted returns the number of events fired so far.
func (t *Tracker) EventsEmitted() uint64 {
	return t.emitted.Load()
}

// Observe admits one frame's match results, in frame order. It associates
// each detection with a track or opens a new one, fires emissions, and closes
// tracks that timed out.
func (t *Tracker) Observe(frame domain.Frame, results []domain.MatchResult) {
	if frame.GapBefore {
		t.closeStale(frame.Sequence)
	}

	claimed := make(map[uuid.UUID]bool, len(results))
	for _, result := range results {
		tr := t.associate(result.Detection, claimed)
		if tr == nil {
			tr = t.open(result.Detection)
		}
		claimed[tr.ID] = true
		t.update(tr, result)
	}

	t.sweep(t.now())
}

// Sweep closes tracks whose inactivity timeout elapsed. The pipeline calls
// this periodically so quiet sources still expire their tracks.
func (t *Tracker) Sweep() {
	t.sweep(t.now())
}

// associate finds the best existing track for the detection: highest IoU above
// threshold wins, ties broken by most recently updated. Tracks already claimed
// by another detection of the same frame are skipped.
func (t *Tracker) associate(d domain.Detection, claimed map[uuid.UUID]bool) *domain.Track {
	var (
		best    *domain.Track
		bestIoU float64
	)

	for _, tr := range t.tracks {
		if claimed[tr.ID] {
			continue
		}
		if d.Sequence < tr.LastSequence || d.Sequence-tr.LastSequence > t.opts.MaxFrameGap+1 {
			continue
		}

		iou := d.BoundingBox.IoU(tr.LastBox)
		if iou < t.opts.IoUThreshold {
			continue
		}
		if best == nil || iou > bestIoU ||
			(iou == bestIoU && tr.LastSeen.After(best.LastSeen)) {
			best = tr
			bestIoU = iou
		}
	}
	return best
}

func (t *Tracker) open(d domain.Detection) *domain.Track {
	tr := &domain.Track{
		ID:           uuid.New(),
		SourceID:     t.sourceID,
		State:        domain.TrackOpen,
		FirstSeen:    d.Timestamp,
		LastSeen:     d.Timestamp,
		LastSequence: d.Sequence,
		LastBox:      d.BoundingBox,
	}
	t.tracks[tr.ID] = tr
	t.active.Add(1)
	return tr
}

func (t *Tracker) update(tr *domain.Track, result domain.MatchResult) {
	d := result.Detection
	tr.LastSeen = d.Timestamp
	tr.LastSequence = d.Sequence
	tr.LastBox = d.BoundingBox
	tr.DetectionCount++

	if !result.IsMatch {
		return
	}

	switch {
	case tr.IdentityID == "":
		tr.IdentityID = result.BestIdentityID
		tr.DisplayName = result.DisplayName
		tr.BestSimilarity = result.Similarity
		t.transitionToEmit(tr)

	case tr.IdentityID == result.BestIdentityID:
		if result.Similarity > tr.BestSimilarity {
			tr.BestSimilarity = result.Similarity
		}

	case result.Similarity > tr.BestSimilarity:
		// A strictly higher-confidence match for a different identity
		// reassigns the track. Upstream intent is ambiguous here, so the
		// anomaly is logged for review.
		t.logger.Warn("track identity reassigned",
			"source", t.sourceID,
			"track_id", tr.ID,
			"previous_identity", tr.IdentityID,
			"new_identity", result.BestIdentityID,
			"previous_similarity", tr.BestSimilarity,
			"new_similarity", result.Similarity,
		)
		tr.IdentityID = result.BestIdentityID
		tr.DisplayName = result.DisplayName
		tr.BestSimilarity = result.Similarity
	}
}

// transitionToEmit moves OPEN -> PENDING_EMIT -> EMITTED. Emission is
// synchronous with entering PENDING_EMIT and happens exactly once per track.
func (t *Tracker) transitionToEmit(tr *domain.Track) {
	if tr.State != domain.TrackOpen {
		return
	}
	tr.State = domain.TrackPendingEmit

	event := domain.NewEventFromTrack(tr)
	tr.State = domain.TrackEmitted
	t.emitted.Add(1)
	t.emit(event)
}

// closeStale closes tracks that cannot be joined anymore after a frame gap
// (reconnect or backpressure drop).
func (t *Tracker) closeStale(seq uint64) {
	for id, tr := range t.tracks {
		if seq > tr.LastSequence && seq-tr.LastSequence > t.opts.MaxFrameGap+1 {
			t.close(id, tr)
		}
	}
}

func (t *Tracker) sweep(now time.Time) {
	for id, tr := range t.tracks {
		if now.Sub(tr.LastSeen) > t.opts.InactivityTimeout {
			t.close(id, tr)
		}
	}
}

// close evicts a track. No event fires on close.
func (t *Tracker) close(id uuid.UUID, tr *domain.Track) {
	tr.State = domain.TrackClosed
	delete(t.tracks, id)
	t.active.Add(-1)

	t.logger.Debug("track closed",
		"source", t.sourceID,
		"track_id", tr.ID,
		"identity", tr.IdentityID,
		"detections", tr.DetectionCount,
	)
}
