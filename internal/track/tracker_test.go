package track

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// collector gathers emitted events and lets tests control the clock.
type collector struct {
	events []domain.Event
}

func (c *collector) emit(e domain.Event) {
	c.events = append(c.events, e)
}

func newTestTracker(opts Options) (*Tracker, *collector, *time.Time) {
	c := &collector{}
	tr := NewTracker("cam-1", opts, c.emit, testLogger())

	now := baseTime
	tr.now = func() time.Time { return now }
	return tr, c, &now
}

func result(seq uint64, box domain.BoundingBox, identity string, similarity float64) domain.MatchResult {
	r := domain.MatchResult{
		Detection: domain.Detection{
			SourceID:    "cam-1",
			Sequence:    seq,
			Timestamp:   baseTime.Add(time.Duration(seq) * time.Second),
			BoundingBox: box,
		},
		Similarity: similarity,
	}
	if identity != "" {
		r.IsMatch = true
		r.BestIdentityID = identity
		r.DisplayName = identity
	}
	return r
}

func frame(seq uint64, gap bool) domain.Frame {
	return domain.Frame{
		SourceID:  "cam-1",
		Sequence:  seq,
		Timestamp: baseTime.Add(time.Duration(seq) * time.Second),
		GapBefore: gap,
	}
}

func TestTrackerEmitsOncePerTrack(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 100, Y: 100, Width: 50, Height: 50}
	for seq := uint64(0); seq < 20; seq++ {
		tr.Observe(frame(seq, false), []domain.MatchResult{
			result(seq, box, "alice", 0.8),
		})
	}

	require.Len(t, c.events, 1, "same face over consecutive frames emits exactly one event")
	assert.Equal(t, "alice", c.events[0].IdentityID)
	assert.Equal(t, "cam-1", c.events[0].SourceID)
	assert.Equal(t, 0.8, c.events[0].Similarity)
	assert.Equal(t, uint64(1), tr.EventsEmitted())
	assert.Equal(t, int64(1), tr.ActiveTracks())
}

func TestTrackerNoMatchNoEvent(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 0, Y: 0, Width: 40, Height: 40}
	for seq := uint64(0); seq < 5; seq++ {
		tr.Observe(frame(seq, false), []domain.MatchResult{
			result(seq, box, "", 0.1),
		})
	}

	assert.Empty(t, c.events)
	assert.Equal(t, int64(1), tr.ActiveTracks(), "unmatched detections still form a track")
}

func TestTrackerGapSplitsTrack(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 100, Y: 100, Width: 50, Height: 50}
	for seq := uint64(0); seq < 5; seq++ {
		tr.Observe(frame(seq, false), []domain.MatchResult{
			result(seq, box, "alice", 0.7),
		})
	}

	// Reconnect: sequence jumps past the tolerated gap and the frame carries
	// the gap flag, so the person re-appearing is a new track and a new event.
	for seq := uint64(20); seq < 25; seq++ {
		tr.Observe(frame(seq, seq == 20), []domain.MatchResult{
			result(seq, box, "alice", 0.7),
		})
	}

	require.Len(t, c.events, 2, "a frame gap ends the track; re-detection emits again")
	assert.NotEqual(t, c.events[0].TrackID, c.events[1].TrackID)
	assert.Equal(t, c.events[0].IdentityID, c.events[1].IdentityID)
}

func TestTrackerSmallGapKeepsTrack(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxFrameGap = 2
	tr, c, _ := newTestTracker(opts)

	box := domain.BoundingBox{X: 100, Y: 100, Width: 50, Height: 50}
	tr.Observe(frame(0, false), []domain.MatchResult{result(0, box, "alice", 0.7)})
	// Two sampled frames missed: still within tolerance.
	tr.Observe(frame(3, false), []domain.MatchResult{result(3, box, "alice", 0.7)})

	assert.Len(t, c.events, 1)
	assert.Equal(t, int64(1), tr.ActiveTracks())
}

func TestTrackerAssociationPrefersHighestIoU(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	left := domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}
	right := domain.BoundingBox{X: 200, Y: 0, Width: 50, Height: 50}

	tr.Observe(frame(0, false), []domain.MatchResult{
		result(0, left, "alice", 0.7),
		result(0, right, "bob", 0.6),
	})
	require.Len(t, c.events, 2)
	assert.Equal(t, int64(2), tr.ActiveTracks())

	// Both faces drift slightly; each stays with its own track.
	leftMoved := domain.BoundingBox{X: 5, Y: 0, Width: 50, Height: 50}
	rightMoved := domain.BoundingBox{X: 205, Y: 0, Width: 50, Height: 50}
	tr.Observe(frame(1, false), []domain.MatchResult{
		result(1, leftMoved, "alice", 0.7),
		result(1, rightMoved, "bob", 0.6),
	})

	assert.Len(t, c.events, 2, "continued tracks must not re-emit")
	assert.Equal(t, int64(2), tr.ActiveTracks())
}

func TestTrackerTwoFacesCannotShareOneTrack(t *testing.T) {
	tr, _, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}
	tr.Observe(frame(0, false), []domain.MatchResult{result(0, box, "", 0)})

	// Two overlapping detections in the next frame: only one may join the
	// existing track, the other opens a new one.
	tr.Observe(frame(1, false), []domain.MatchResult{
		result(1, box, "", 0),
		result(1, domain.BoundingBox{X: 5, Y: 0, Width: 50, Height: 50}, "", 0),
	})

	assert.Equal(t, int64(2), tr.ActiveTracks())
}

func TestTrackerIdentityReassignment(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}
	tr.Observe(frame(0, false), []domain.MatchResult{result(0, box, "alice", 0.5)})
	require.Len(t, c.events, 1)
	assert.Equal(t, "alice", c.events[0].IdentityID)

	// A lower-confidence different identity is ignored.
	tr.Observe(frame(1, false), []domain.MatchResult{result(1, box, "bob", 0.4)})
	assert.Len(t, c.events, 1)

	// A strictly higher one reassigns the track but never re-emits.
	tr.Observe(frame(2, false), []domain.MatchResult{result(2, box, "bob", 0.9)})
	assert.Len(t, c.events, 1, "reassignment must not fire a second event")
}

func TestTrackerBestSimilarityIsMonotonic(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}
	tr.Observe(frame(0, false), []domain.MatchResult{result(0, box, "alice", 0.5)})
	tr.Observe(frame(1, false), []domain.MatchResult{result(1, box, "alice", 0.9)})
	tr.Observe(frame(2, false), []domain.MatchResult{result(2, box, "alice", 0.6)})

	// The emitted event froze the similarity at emission time.
	require.Len(t, c.events, 1)
	assert.Equal(t, 0.5, c.events[0].Similarity)
}

func TestTrackerInactivitySweep(t *testing.T) {
	opts := DefaultOptions()
	opts.InactivityTimeout = 2 * time.Second
	tr, _, now := newTestTracker(opts)

	box := domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}
	tr.Observe(frame(0, false), []domain.MatchResult{result(0, box, "alice", 0.7)})
	assert.Equal(t, int64(1), tr.ActiveTracks())

	*now = baseTime.Add(10 * time.Second)
	tr.Sweep()
	assert.Equal(t, int64(0), tr.ActiveTracks(), "inactive tracks are closed without events")

	// The same person after the timeout is a fresh track.
	tr.Observe(frame(100, false), []domain.MatchResult{result(100, box, "alice", 0.7)})
	assert.Equal(t, int64(1), tr.ActiveTracks())
	assert.Equal(t, uint64(2), tr.EventsEmitted())
}

func TestTrackerEventTimestamps(t *testing.T) {
	tr, c, _ := newTestTracker(DefaultOptions())

	box := domain.BoundingBox{X: 0, Y: 0, Width: 50, Height: 50}
	tr.Observe(frame(0, false), []domain.MatchResult{result(0, box, "", 0)})
	tr.Observe(frame(1, false), []domain.MatchResult{result(1, box, "", 0)})
	tr.Observe(frame(2, false), []domain.MatchResult{result(2, box, "alice", 0.7)})

	require.Len(t, c.events, 1)
	ev := c.events[0]
	assert.Equal(t, baseTime, ev.TimestampStart, "start is the track's first sighting")
	assert.Equal(t, baseTime.Add(2*time.Second), ev.TimestampEnd)
	assert.Equal(t, uint64(2), ev.EvidenceSeq)
}
