// Package detect talks to the external face detector/embedder. The model is
// an opaque collaborator: an image in, zero or more (box, embedding) pairs
// out. A collaborator failure is a recoverable per-frame error.
package detect

import (
	"context"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Face is one detector result before it is tied to a frame.
type Face struct {
	BoundingBox domain.BoundingBox
	Embedding   []float32
	Confidence  float64
}

// Detector is the detect_and_embed collaborator contract.
type Detector interface {
	// DetectAndEmbed returns every face found in the image. An empty result
	// is a normal outcome.
	DetectAndEmbed(ctx context.Context, image []byte) ([]Face, error)
}
