package pipeline

import (
	"sync/atomic"
)

// Stats holds the pipeline's internal counters. Reads are pure: the stats
// surface has no side effects.
type Stats struct {
	framesProcessed   atomic.Uint64
	detectionFailures atomic.Uint64
	sourceErrors      atomic.Uint64
}

func (s *Stats) FramesProcessed() uint64 {
	return s.framesProcessed.Load()
}

func (s *Stats) DetectionFailures() uint64 {
	return s.detectionFailures.Load()
}

func (s *Stats) SourceErrors() uint64 {
	return s.sourceErrors.Load()
}
