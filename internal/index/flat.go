// Package index provides the in-memory similarity index over the watchlist.
//
// The index is a flat, contiguous array of normalized vectors scanned with a
// batched dot product. At the target scale (1e5 vectors, a few hundred
// dimensions) brute force beats approximate indexes on recall and maintenance
// cost; revisit only past ~1e6 vectors.
package index

import (
	"container/heap"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Match is one query result row.
type Match struct {
	IdentityID  string
	DisplayName string
	Score       float64
}

// snapshot is the immutable state served to readers. Rebuilds swap in a whole
// new snapshot; in-flight queries keep reading the one they started with.
type snapshot struct {
	vectors []float32 // row-major, len = rows*dim
	rows    []rowMeta
	dim     int
}

type rowMeta struct {
	identityID  string
	displayName string
}

// Flat is the brute-force similarity index. Queries are lock-free; Rebuild
// serializes writers only.
type Flat struct {
	state      atomic.Pointer[snapshot]
	writeMu    sync.Mutex
	dim        int
	generation atomic.Uint64
}

// NewFlat creates an empty index for vectors of the given dimensionality.
func NewFlat(dim int) *Flat {
	f := &Flat{dim: dim}
	f.state.Store(&snapshot{dim: dim})
	return f
}

// Rebuild atomically replaces the index contents with the given watchlist
// snapshot. Readers observe either the old or the new index, never a mix.
func (f *Flat) Rebuild(entries []domain.WatchlistEntry) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	next := &snapshot{
		vectors: make([]float32, 0, len(entries)*f.dim),
		rows:    make([]rowMeta, 0, len(entries)),
		dim:     f.dim,
	}

	for _, entry := range entries {
		if len(entry.Embedding) != f.dim {
			return domain.ErrInvalidVector.WithError(
				fmt.Errorf("identity %s: got %d values, expected %d",
					entry.IdentityID, len(entry.Embedding), f.dim))
		}
		next.vectors = append(next.vectors, entry.Embedding...)
		next.rows = append(next.rows, rowMeta{
			identityID:  entry.IdentityID,
			displayName: entry.DisplayName,
		})
	}

	f.state.Store(next)
	f.generation.Add(1)
	return nil
}

// Query returns up to topK matches ordered by non-increasing similarity.
// An empty result is a normal outcome, not an error.
func (f *Flat) Query(query domain.Embedding, topK int) ([]Match, error) {
	if len(query) != f.dim {
		return nil, domain.ErrInvalidVector.WithError(
			fmt.Errorf("query has %d values, expected %d", len(query), f.dim))
	}
	if topK < 1 {
		topK = 1
	}

	snap := f.state.Load()
	rows := len(snap.rows)
	if rows == 0 {
		return nil, nil
	}

	// One goroutine per chunk for large indexes; the scan is embarrassingly
	// parallel over contiguous memory.
	workers := runtime.GOMAXPROCS(0)
	const minRowsPerWorker = 4096
	if rows/minRowsPerWorker < workers {
		workers = rows/minRowsPerWorker + 1
	}

	if workers <= 1 {
		return snap.scan(query, 0, rows, topK), nil
	}

	chunk := (rows + workers - 1) / workers
	partials := make([][]Match, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, rows)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			partials[w] = snap.scan(query, start, end, topK)
		}(w, start, end)
	}
	wg.Wait()

	var merged []Match
	for _, p := range partials {
		merged = append(merged, p...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Size returns the number of indexed rows.
func (f *Flat) Size() int {
	return len(f.state.Load().rows)
}

// Generation increases by one on every successful rebuild.
func (f *Flat) Generation() uint64 {
	return f.generation.Load()
}

// scan computes dot products for rows [start,end) and keeps the topK best.
func (s *snapshot) scan(query domain.Embedding, start, end, topK int) []Match {
	h := make(matchHeap, 0, topK)

	for row := start; row < end; row++ {
		base := row * s.dim
		vec := s.vectors[base : base+s.dim]

		var score float32
		for i, q := range query {
			score += q * vec[i]
		}

		m := Match{
			IdentityID:  s.rows[row].identityID,
			DisplayName: s.rows[row].displayName,
			Score:       float64(score),
		}
		if len(h) < topK {
			heap.Push(&h, m)
		} else if m.Score > h[0].Score {
			h[0] = m
			heap.Fix(&h, 0)
		}
	}

	out := make([]Match, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Match)
	}
	return out
}

// matchHeap is a min-heap on score so the worst kept match sits at the root.
type matchHeap []Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(Match)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
