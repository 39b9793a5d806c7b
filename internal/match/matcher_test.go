package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/index"
)

const dim = 4

func embed(t *testing.T, values []float32) domain.Embedding {
	t.Helper()
	e, err := domain.NewEmbedding(values, dim)
	require.NoError(t, err)
	return e
}

func TestMatchEmptyIndex(t *testing.T) {
	m := NewMatcher(index.NewFlat(dim), 0.35)

	result, err := m.Match(domain.Detection{Embedding: embed(t, []float32{1, 0, 0, 0})})
	require.NoError(t, err)
	assert.False(t, result.IsMatch)
	assert.Empty(t, result.BestIdentityID)
}

func TestMatchThresholdBoundary(t *testing.T) {
	idx := index.NewFlat(dim)
	require.NoError(t, idx.Rebuild([]domain.WatchlistEntry{
		{IdentityID: "alice", DisplayName: "Alice", Embedding: embed(t, []float32{1, 0, 0, 0})},
	}))

	tests := []struct {
		name      string
		threshold float64
		query     []float32
		wantMatch bool
	}{
		{
			name:      "identical vector matches",
			threshold: 0.35,
			query:     []float32{1, 0, 0, 0},
			wantMatch: true,
		},
		{
			name: "score equal to threshold matches",
			// Identical unit vectors score exactly 1.0, probing the
			// inclusive boundary without float rounding in the way.
			threshold: 1.0,
			query:     []float32{1, 0, 0, 0},
			wantMatch: true,
		},
		{
			name:      "score below threshold does not match",
			threshold: 0.35,
			query:     []float32{0, 1, 0, 0},
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(idx, tt.threshold)
			result, err := m.Match(domain.Detection{Embedding: embed(t, tt.query)})
			require.NoError(t, err)

			assert.Equal(t, tt.wantMatch, result.IsMatch)
			if tt.wantMatch {
				assert.Equal(t, "alice", result.BestIdentityID)
				assert.Equal(t, "Alice", result.DisplayName)
				assert.GreaterOrEqual(t, result.Similarity, tt.threshold-1e-6)
			} else {
				assert.Empty(t, result.BestIdentityID)
			}
		})
	}
}

func TestMatchPicksNearestIdentity(t *testing.T) {
	idx := index.NewFlat(dim)
	require.NoError(t, idx.Rebuild([]domain.WatchlistEntry{
		{IdentityID: "alice", DisplayName: "Alice", Embedding: embed(t, []float32{1, 0, 0, 0})},
		{IdentityID: "bob", DisplayName: "Bob", Embedding: embed(t, []float32{0, 1, 0, 0})},
	}))
	m := NewMatcher(idx, 0.35)

	result, err := m.Match(domain.Detection{Embedding: embed(t, []float32{0.9, 0.1, 0, 0})})
	require.NoError(t, err)
	assert.True(t, result.IsMatch)
	assert.Equal(t, "alice", result.BestIdentityID)
}

func TestMatchInvalidQueryDimension(t *testing.T) {
	m := NewMatcher(index.NewFlat(dim), 0.35)

	_, err := m.Match(domain.Detection{Embedding: make(domain.Embedding, dim+1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidVector)
}
