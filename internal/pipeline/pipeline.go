// Package pipeline runs one ingestion flow per source: frames are processed
// by a bounded worker pool (detection + matching) with results restored to
// submission order before tracker admission, so tracking always sees frames
// in temporal order.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/vigia/internal/detect"
	"github.com/saturnino-fabrica-de-software/vigia/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/match"
	"github.com/saturnino-fabrica-de-software/vigia/internal/source"
	"github.com/saturnino-fabrica-de-software/vigia/internal/track"
)

// Options tune the per-source processing flow.
type Options struct {
	Workers         int
	FrameBufferSize int
	EmbeddingSize   int
	DetectorTimeout time.Duration
	SweepInterval   time.Duration
	Tracker         track.Options
}

type Pipeline struct {
	opts       Options
	detector   detect.Detector
	matcher    *match.Matcher
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	stats      *Stats

	mu       sync.Mutex
	trackers []*track.Tracker
	streams  []*source.RTSP
}

func New(opts Options, detector detect.Detector, matcher *match.Matcher, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.FrameBufferSize < 1 {
		opts.FrameBufferSize = 1
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}
	return &Pipeline{
		opts:       opts,
		detector:   detector,
		matcher:    matcher,
		dispatcher: dispatcher,
		logger:     logger,
		stats:      &Stats{},
	}
}

// Stats exposes the pipeline's counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// ActiveTracks sums the active tracks across all sources.
func (p *Pipeline) ActiveTracks() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var total int64
	for _, t := range p.trackers {
		total += t.ActiveTracks()
	}
	return total
}

// Degraded reports whether any live source is currently down.
func (p *Pipeline) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.streams {
		if s.State() == source.StateReconnecting {
			return true
		}
	}
	return false
}

// Run processes every source concurrently and returns when all finite
// sources are exhausted and the context cancels the live ones. A failing
// source never takes the others down.
func (p *Pipeline) Run(ctx context.Context, sources []source.Source) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, src := range sources {
		if rtsp, ok := src.(*source.RTSP); ok {
			p.mu.Lock()
			p.streams = append(p.streams, rtsp)
			p.mu.Unlock()
		}

		g.Go(func() error {
			if err := p.runSource(ctx, src); err != nil && ctx.Err() == nil {
				p.stats.sourceErrors.Add(1)
				p.logger.Error("source flow terminated",
					"source", src.ID(),
					"kind", src.Kind(),
					"error", err,
				)
			}
			return nil
		})
	}

	return g.Wait()
}

// job pairs a frame with the channel its results are delivered on. The
// pending queue of these channels restores submission order.
type job struct {
	frame  domain.Frame
	result chan []domain.MatchResult
}

func (p *Pipeline) runSource(ctx context.Context, src source.Source) error {
	tracker := track.NewTracker(src.ID(), p.opts.Tracker, p.dispatcher.Dispatch, p.logger)
	p.mu.Lock()
	p.trackers = append(p.trackers, tracker)
	p.mu.Unlock()

	frames := make(chan domain.Frame, p.opts.FrameBufferSize)
	jobs := make(chan job)
	pending := make(chan job, p.opts.Workers*2)

	var runErr error
	var wg sync.WaitGroup

	// Source reader.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(frames)
		runErr = src.Run(ctx, frames)
	}()

	// Submitter: preserves frame order via the pending queue.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		defer close(pending)
		for frame := range frames {
			j := job{frame: frame, result: make(chan []domain.MatchResult, 1)}
			select {
			case <-ctx.Done():
				return
			case jobs <- j:
			}
			select {
			case <-ctx.Done():
				return
			case pending <- j:
			}
		}
	}()

	// Worker pool: detection + matching, unordered.
	var workerWG sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for j := range jobs {
				j.result <- p.process(ctx, j.frame)
			}
		}()
	}

	// Collector: the single tracker writer, consuming results in order.
	sweep := time.NewTicker(p.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			workerWG.Wait()
			wg.Wait()
			return ctx.Err()
		case <-sweep.C:
			tracker.Sweep()
		case j, ok := <-pending:
			if !ok {
				workerWG.Wait()
				wg.Wait()
				tracker.Sweep()
				return runErr
			}
			results := <-j.result
			tracker.Observe(j.frame, results)
			p.stats.framesProcessed.Add(1)
		}
	}
}

// process runs detection and matching for one frame. A collaborator failure
// is recoverable: the frame is treated as having no detections.
func (p *Pipeline) process(ctx context.Context, frame domain.Frame) []domain.MatchResult {
	detectCtx, cancel := context.WithTimeout(ctx, p.opts.DetectorTimeout)
	defer cancel()

	faces, err := p.detector.DetectAndEmbed(detectCtx, frame.Image)
	if err != nil {
		p.stats.detectionFailures.Add(1)
		p.logger.Warn("detection failed, frame skipped",
			"source", frame.SourceID,
			"sequence", frame.Sequence,
			"error", err,
		)
		return nil
	}

	var results []domain.MatchResult
	for _, face := range faces {
		embedding, err := domain.NewEmbedding(face.Embedding, p.opts.EmbeddingSize)
		if err != nil {
			p.logger.Warn("detector returned invalid embedding",
				"source", frame.SourceID,
				"sequence", frame.Sequence,
				"error", err,
			)
			continue
		}

		detection := domain.Detection{
			SourceID:    frame.SourceID,
			Sequence:    frame.Sequence,
			Timestamp:   frame.Timestamp,
			BoundingBox: face.BoundingBox,
			Embedding:   embedding,
			Confidence:  face.Confidence,
		}

		result, err := p.matcher.Match(detection)
		if err != nil {
			p.logger.Warn("match failed",
				"source", frame.SourceID,
				"sequence", frame.Sequence,
				"error", err,
			)
			continue
		}
		results = append(results, result)
	}
	return results
}
