// Package match applies the similarity threshold policy on top of the index.
package match

import (
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/index"
)

// Matcher decides match/no-match for a single detection. The threshold is
// global; 0.35 in cosine space is tuned for surveillance-quality imagery,
// lower than typical face-verification thresholds because of pose and
// lighting degradation.
type Matcher struct {
	index     *index.Flat
	threshold float64
}

func NewMatcher(idx *index.Flat, threshold float64) *Matcher {
	return &Matcher{index: idx, threshold: threshold}
}

// Match queries the index for the nearest identity. An empty index or a score
// below threshold yields IsMatch=false, which is a normal outcome. The
// boundary is inclusive: score == threshold is a match.
func (m *Matcher) Match(detection domain.Detection) (domain.MatchResult, error) {
	result := domain.MatchResult{Detection: detection}

	matches, err := m.index.Query(detection.Embedding, 1)
	if err != nil {
		return result, err
	}
	if len(matches) == 0 {
		return result, nil
	}

	best := matches[0]
	result.Similarity = best.Score
	if best.Score >= m.threshold {
		result.IsMatch = true
		result.BestIdentityID = best.IdentityID
		result.DisplayName = best.DisplayName
	}
	return result, nil
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}
