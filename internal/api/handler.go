// Package api is the read-only status surface consumed by the dashboard
// layer: internal counters and recent events, no side effects.
package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/vigia/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/vigia/internal/pipeline"
)

// IdentityCounter is the store capability the stats handler needs.
type IdentityCounter interface {
	CountIdentities(ctx context.Context) (int, error)
}

// IndexHealth reports whether the index is serving stale data.
type IndexHealth interface {
	Degraded() bool
}

type Handler struct {
	pipeline   *pipeline.Pipeline
	dispatcher *dispatch.Dispatcher
	store      IdentityCounter
	indexState IndexHealth
}

func NewHandler(p *pipeline.Pipeline, d *dispatch.Dispatcher, store IdentityCounter, indexState IndexHealth) *Handler {
	return &Handler{
		pipeline:   p,
		dispatcher: d,
		store:      store,
		indexState: indexState,
	}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: "0.1.0",
	})
}

type StatsResponse struct {
	ActiveTracks        int64  `json:"active_tracks"`
	WatchlistIdentities int    `json:"watchlist_identities"`
	EventsEmitted       uint64 `json:"events_emitted"`
	FramesProcessed     uint64 `json:"frames_processed"`
	DetectionFailures   uint64 `json:"detection_failures"`
	SourceErrors        uint64 `json:"source_errors"`
	Degraded            bool   `json:"degraded"`
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	identities, err := h.store.CountIdentities(c.Context())
	degraded := h.indexState.Degraded() || h.pipeline.Degraded()
	if err != nil {
		// Store down: surface degraded mode instead of failing the read.
		degraded = true
		identities = -1
	}

	stats := h.pipeline.Stats()
	return c.JSON(StatsResponse{
		ActiveTracks:        h.pipeline.ActiveTracks(),
		WatchlistIdentities: identities,
		EventsEmitted:       h.dispatcher.Dispatched(),
		FramesProcessed:     stats.FramesProcessed(),
		DetectionFailures:   stats.DetectionFailures(),
		SourceErrors:        stats.SourceErrors(),
		Degraded:            degraded,
	})
}

func (h *Handler) Events(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	return c.JSON(fiber.Map{
		"events": h.dispatcher.Recent(limit),
	})
}
