package domain

import (
	"time"
)

// Frame is one timestamped image pulled from a source. Frames are consumed
// once by detection and not persisted beyond processing.
type Frame struct {
	SourceID  string
	Timestamp time.Time
	Sequence  uint64
	Image     []byte
	// GapBefore marks that one or more frames were lost before this one
	// (live-source reconnect or backpressure drop). The tracker uses it to
	// close stale tracks sooner.
	GapBefore bool
}

// BoundingBox represents a face area in the image, in pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area, zero for degenerate boxes.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// IoU returns the intersection-over-union of two boxes in [0,1].
func (b BoundingBox) IoU(other BoundingBox) float64 {
	x1 := max(b.X, other.X)
	y1 := max(b.Y, other.Y)
	x2 := min(b.X+b.Width, other.X+other.Width)
	y2 := min(b.Y+b.Height, other.Y+other.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := b.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one face found in a frame, paired with its embedding.
type Detection struct {
	SourceID    string
	Sequence    uint64
	Timestamp   time.Time
	BoundingBox BoundingBox
	Embedding   Embedding
	Confidence  float64
}

// MatchResult is the matcher's verdict for a single detection.
type MatchResult struct {
	Detection      Detection
	BestIdentityID string
	DisplayName    string
	Similarity     float64
	IsMatch        bool
}
