package domain

import (
	"fmt"
	"math"
)

// EmbeddingSize is the fixed dimensionality produced by the detector model.
const EmbeddingSize = 512

// NormTolerance is the accepted deviation from unit norm for stored vectors.
const NormTolerance = 1e-6

// Embedding is a fixed-length face embedding, L2-normalized at creation time
// so cosine similarity reduces to a dot product.
type Embedding []float32

// NewEmbedding validates the dimensionality and returns a normalized copy.
func NewEmbedding(values []float32, dim int) (Embedding, error) {
	if len(values) != dim {
		return nil, ErrInvalidVector.WithError(
			fmt.Errorf("got %d values, expected %d", len(values), dim))
	}

	var sum float64
	for _, v := range values {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil, ErrInvalidVector.WithError(fmt.Errorf("zero vector"))
	}

	e := make(Embedding, dim)
	for i, v := range values {
		e[i] = float32(float64(v) / norm)
	}
	return e, nil
}

// Dot returns the dot product, i.e. cosine similarity for normalized vectors.
func (e Embedding) Dot(other Embedding) float32 {
	var sum float32
	for i := range e {
		sum += e[i] * other[i]
	}
	return sum
}

// IsNormalized reports whether the vector has unit norm within NormTolerance.
func (e Embedding) IsNormalized() bool {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Abs(math.Sqrt(sum)-1) <= NormTolerance
}

// Clone returns an independent copy. Stored embeddings are immutable; backends
// copy on read so concurrent index rebuilds never observe a torn vector.
func (e Embedding) Clone() Embedding {
	c := make(Embedding, len(e))
	copy(c, e)
	return c
}
