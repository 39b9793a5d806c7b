// Package dispatch fans out finalized events to the durable event log, the
// recent-events ring, and the configured webhook. Every side effect is
// independently best-effort; none can block or fail the tracker transition
// that produced the event.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type Dispatcher struct {
	logger  *slog.Logger
	ring    *Ring
	webhook *WebhookSender // nil when no URL is configured
	logPath string

	queue chan domain.Event

	dispatched     atomic.Uint64
	webhookFailed  atomic.Uint64
	eventLogFailed atomic.Uint64
}

// Options for the dispatcher.
type Options struct {
	EventLogPath  string
	WebhookURL    string
	WebhookSecret string
	RingSize      int
	QueueSize     int
}

func NewDispatcher(opts Options, logger *slog.Logger) *Dispatcher {
	if opts.RingSize < 1 {
		opts.RingSize = 256
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}

	d := &Dispatcher{
		logger:  logger,
		ring:    NewRing(opts.RingSize),
		logPath: opts.EventLogPath,
		queue:   make(chan domain.Event, opts.QueueSize),
	}
	if opts.WebhookURL != "" {
		d.webhook = NewWebhookSender(opts.WebhookURL, opts.WebhookSecret)
	}
	return d
}

// Dispatch enqueues an event for delivery. Never blocks: if the queue is
// full the event still reaches the ring and the drop is logged.
func (d *Dispatcher) Dispatch(event domain.Event) {
	d.ring.Add(event)
	d.dispatched.Add(1)

	select {
	case d.queue <- event:
	default:
		d.logger.Error("dispatch queue full, event delivery skipped",
			"event_id", event.ID,
			"identity", event.IdentityID,
		)
	}
}

// Recent returns the newest events for the dashboard, newest first.
func (d *Dispatcher) Recent(limit int) []domain.Event {
	return d.ring.Recent(limit)
}

// Dispatched returns the total number of events handed to the dispatcher.
func (d *Dispatcher) Dispatched() uint64 {
	return d.dispatched.Load()
}

// Run delivers queued events until the context is cancelled, then drains
// whatever is left in the queue.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("event dispatcher started", "webhook_enabled", d.webhook != nil)

	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("event dispatcher stopped")
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.queue:
			// Shutdown path: log-only, no webhook retries.
			d.appendLog(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event domain.Event) {
	d.logger.Info("watchlist match",
		"event_id", event.ID,
		"identity", event.IdentityID,
		"display_name", event.DisplayName,
		"source", event.SourceID,
		"similarity", event.Similarity,
	)

	payload := d.appendLog(event)

	if d.webhook != nil && payload != nil {
		if err := d.webhook.Send(ctx, payload); err != nil {
			d.webhookFailed.Add(1)
			d.logger.Warn("webhook delivery failed",
				"event_id", event.ID,
				"error", domain.ErrDispatchFailed.WithError(err),
			)
		}
	}
}

// appendLog writes one JSON line per event and returns the serialized
// payload for webhook reuse.
func (d *Dispatcher) appendLog(event domain.Event) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("marshal event", "event_id", event.ID, "error", err)
		return nil
	}

	if d.logPath == "" {
		return payload
	}

	f, err := os.OpenFile(d.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.eventLogFailed.Add(1)
		d.logger.Warn("open event log", "path", d.logPath, "error", err)
		return payload
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		d.eventLogFailed.Add(1)
		d.logger.Warn("append event log", "path", d.logPath, "error", err)
	}
	return payload
}
