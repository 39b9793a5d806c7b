package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/detect"
	"github.com/saturnino-fabrica-de-software/vigia/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/index"
	"github.com/saturnino-fabrica-de-software/vigia/internal/match"
	"github.com/saturnino-fabrica-de-software/vigia/internal/source"
	"github.com/saturnino-fabrica-de-software/vigia/internal/track"
)

const testDim = 4

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// replaySource is a finite in-memory source used instead of files.
type replaySource struct {
	id     string
	frames []domain.Frame
}

func (s *replaySource) ID() string { return s.id }

func (s *replaySource) Kind() source.Kind { return source.KindVideo }

func (s *replaySource) Run(ctx context.Context, out chan<- domain.Frame) error {
	for _, f := range s.frames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- f:
		}
	}
	return nil
}

func replayFrames(sourceID string, n int) []domain.Frame {
	// Timestamps run forward from now so the inactivity sweep, which compares
	// against the wall clock, never closes tracks mid-test.
	base := time.Now().UTC()
	frames := make([]domain.Frame, n)
	for i := range frames {
		frames[i] = domain.Frame{
			SourceID:  sourceID,
			Sequence:  uint64(i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Image:     []byte{byte(i)},
		}
	}
	return frames
}

func watchlistIndex(t *testing.T) *index.Flat {
	t.Helper()
	idx := index.NewFlat(testDim)
	e, err := domain.NewEmbedding([]float32{1, 0, 0, 0}, testDim)
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild([]domain.WatchlistEntry{
		{IdentityID: "alice", DisplayName: "Alice", Embedding: e},
	}))
	return idx
}

func testOptions() Options {
	return Options{
		Workers:         4,
		FrameBufferSize: 8,
		EmbeddingSize:   testDim,
		DetectorTimeout: time.Second,
		SweepInterval:   time.Hour,
		Tracker: track.Options{
			IoUThreshold:      0.3,
			MaxFrameGap:       1,
			InactivityTimeout: time.Hour,
		},
	}
}

func matchedFace() []detect.Face {
	return []detect.Face{{
		BoundingBox: domain.BoundingBox{X: 100, Y: 100, Width: 50, Height: 50},
		Embedding:   []float32{1, 0, 0, 0},
		Confidence:  0.95,
	}}
}

// The same face across many frames must produce exactly one event, even with
// several workers racing on detection: the collector restores frame order
// before the tracker sees results.
func TestPipelineEmitsOncePerContinuousAppearance(t *testing.T) {
	detector := detect.NewMock().Always(matchedFace())
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{QueueSize: 128}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	src := &replaySource{id: "video-1", frames: replayFrames("video-1", 50)}
	require.NoError(t, p.Run(context.Background(), []source.Source{src}))

	assert.Equal(t, uint64(50), p.Stats().FramesProcessed())
	assert.Equal(t, uint64(0), p.Stats().DetectionFailures())
	assert.Equal(t, 50, detector.Calls())

	events := dispatcher.Recent(0)
	require.Len(t, events, 1, "one continuous appearance emits one event")
	assert.Equal(t, "alice", events[0].IdentityID)
	assert.Equal(t, "video-1", events[0].SourceID)
	assert.Equal(t, int64(1), p.ActiveTracks())
}

func TestPipelineNoMatchNoEvents(t *testing.T) {
	strangerFace := []detect.Face{{
		BoundingBox: domain.BoundingBox{X: 0, Y: 0, Width: 40, Height: 40},
		Embedding:   []float32{0, 1, 0, 0},
		Confidence:  0.9,
	}}
	detector := detect.NewMock().Always(strangerFace)
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	src := &replaySource{id: "video-1", frames: replayFrames("video-1", 10)}
	require.NoError(t, p.Run(context.Background(), []source.Source{src}))

	assert.Equal(t, uint64(10), p.Stats().FramesProcessed())
	assert.Empty(t, dispatcher.Recent(0))
}

func TestPipelineDetectorFailureSkipsFrames(t *testing.T) {
	detector := detect.NewMock().Fail(fmt.Errorf("model service down"))
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	src := &replaySource{id: "video-1", frames: replayFrames("video-1", 5)}
	require.NoError(t, p.Run(context.Background(), []source.Source{src}),
		"a failing collaborator must not fail the pipeline")

	assert.Equal(t, uint64(5), p.Stats().FramesProcessed())
	assert.Equal(t, uint64(5), p.Stats().DetectionFailures())
	assert.Empty(t, dispatcher.Recent(0))
}

func TestPipelineInvalidEmbeddingSkipsDetection(t *testing.T) {
	badFace := []detect.Face{{
		BoundingBox: domain.BoundingBox{X: 0, Y: 0, Width: 40, Height: 40},
		Embedding:   []float32{1, 0}, // wrong dimensionality
		Confidence:  0.9,
	}}
	detector := detect.NewMock().Always(badFace)
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	src := &replaySource{id: "video-1", frames: replayFrames("video-1", 3)}
	require.NoError(t, p.Run(context.Background(), []source.Source{src}))

	assert.Equal(t, uint64(3), p.Stats().FramesProcessed())
	assert.Empty(t, dispatcher.Recent(0))
	assert.Equal(t, int64(0), p.ActiveTracks(), "invalid detections never open tracks")
}

func TestPipelineMultipleSourcesIsolated(t *testing.T) {
	detector := detect.NewMock().Always(matchedFace())
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{QueueSize: 128}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	sources := []source.Source{
		&replaySource{id: "video-1", frames: replayFrames("video-1", 10)},
		&replaySource{id: "video-2", frames: replayFrames("video-2", 10)},
	}
	require.NoError(t, p.Run(context.Background(), sources))

	assert.Equal(t, uint64(20), p.Stats().FramesProcessed())

	events := dispatcher.Recent(0)
	require.Len(t, events, 2, "tracks never span sources")

	seen := map[string]bool{}
	for _, e := range events {
		seen[e.SourceID] = true
	}
	assert.True(t, seen["video-1"])
	assert.True(t, seen["video-2"])
}

func TestPipelineGapClosesTrack(t *testing.T) {
	detector := detect.NewMock().Always(matchedFace())
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{QueueSize: 128}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	frames := replayFrames("cam-1", 5)
	resumed := replayFrames("cam-1", 5)
	for i := range resumed {
		resumed[i].Sequence += 100
		resumed[i].GapBefore = i == 0
	}
	src := &replaySource{id: "cam-1", frames: append(frames, resumed...)}

	require.NoError(t, p.Run(context.Background(), []source.Source{src}))

	assert.Len(t, dispatcher.Recent(0), 2, "a sequence gap splits the appearance into two events")
}

func TestPipelineCancellation(t *testing.T) {
	detector := detect.NewMock().Always(nil)
	matcher := match.NewMatcher(watchlistIndex(t), 0.35)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{}, testLogger())

	p := New(testOptions(), detector, matcher, dispatcher, testLogger())

	// An endless source: cancellation is the only way out.
	endless := &endlessSource{id: "rtsp-like"}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, []source.Source{endless}) }()

	assert.Eventually(t, func() bool {
		return p.Stats().FramesProcessed() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}

type endlessSource struct {
	id  string
	seq uint64
}

func (s *endlessSource) ID() string        { return s.id }
func (s *endlessSource) Kind() source.Kind { return source.KindRTSP }

func (s *endlessSource) Run(ctx context.Context, out chan<- domain.Frame) error {
	for {
		f := domain.Frame{SourceID: s.id, Sequence: s.seq, Timestamp: time.Now()}
		s.seq++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- f:
		}
	}
}
