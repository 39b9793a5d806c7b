package index

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/store"
)

// Rebuilder keeps the flat index in sync with the watchlist store. Mutations
// call Notify; rebuilds are debounced so bulk enrollment does not trigger a
// rebuild storm. A store failure leaves the previous index serving queries
// (degraded mode) instead of failing the pipeline.
type Rebuilder struct {
	store    store.WatchlistStore
	index    *Flat
	logger   *slog.Logger
	debounce time.Duration
	refresh  time.Duration
	notify   chan struct{}
	degraded atomic.Bool
}

func NewRebuilder(s store.WatchlistStore, idx *Flat, logger *slog.Logger, debounce, refresh time.Duration) *Rebuilder {
	return &Rebuilder{
		store:    s,
		index:    idx,
		logger:   logger,
		debounce: debounce,
		refresh:  refresh,
		notify:   make(chan struct{}, 1),
	}
}

// Notify schedules a debounced rebuild. Never blocks.
func (r *Rebuilder) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Degraded reports whether the last rebuild attempt failed and queries are
// being served from a stale index.
func (r *Rebuilder) Degraded() bool {
	return r.degraded.Load()
}

// Rebuild performs one synchronous rebuild, used at startup so the pipeline
// never matches against an empty index when the watchlist has entries.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	entries, err := r.store.ListEmbeddings(ctx)
	if err != nil {
		r.degraded.Store(true)
		return err
	}
	if err := r.index.Rebuild(entries); err != nil {
		r.degraded.Store(true)
		return err
	}
	r.degraded.Store(false)
	r.logger.Debug("index rebuilt",
		"rows", r.index.Size(),
		"generation", r.index.Generation(),
	)
	return nil
}

// Run processes rebuild notifications until the context is cancelled. The
// refresh interval also picks up watchlist changes made by other processes.
func (r *Rebuilder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	r.logger.Info("index rebuilder started",
		"debounce", r.debounce,
		"refresh", r.refresh,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("index rebuilder stopped")
			return
		case <-ticker.C:
			r.rebuildLogged(ctx)
		case <-r.notify:
			if !r.waitDebounce(ctx) {
				return
			}
			r.rebuildLogged(ctx)
		}
	}
}

// waitDebounce coalesces notifications arriving within the debounce window.
// Returns false if the context was cancelled while waiting.
func (r *Rebuilder) waitDebounce(ctx context.Context) bool {
	timer := time.NewTimer(r.debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.notify:
		case <-timer.C:
			return true
		}
	}
}

func (r *Rebuilder) rebuildLogged(ctx context.Context) {
	if err := r.Rebuild(ctx); err != nil {
		r.logger.Warn("index rebuild failed, serving stale index", "error", err)
	}
}
