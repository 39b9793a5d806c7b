package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Watchlist store
	WatchlistBackend string `envconfig:"WATCHLIST_BACKEND" default:"sqlite"`
	DatabaseURL      string `envconfig:"DATABASE_URL" default:"watchlist.db"`
	RedisAddr        string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// Matching
	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.35"`
	EmbeddingSize       int           `envconfig:"EMBEDDING_SIZE" default:"512"`
	RebuildDebounce     time.Duration `envconfig:"REBUILD_DEBOUNCE" default:"500ms"`
	WatchlistRefresh    time.Duration `envconfig:"WATCHLIST_REFRESH" default:"30s"`

	// Detector collaborator
	DetectorURL     string        `envconfig:"DETECTOR_URL" default:"http://localhost:5000"`
	DetectorTimeout time.Duration `envconfig:"DETECTOR_TIMEOUT" default:"10s"`

	// Ingestion
	SampleRateFPS     int           `envconfig:"SAMPLE_RATE_FPS" default:"1"`
	Workers           int           `envconfig:"WORKERS" default:"4"`
	FrameBufferSize   int           `envconfig:"FRAME_BUFFER_SIZE" default:"8"`
	ReconnectMaxDelay time.Duration `envconfig:"RECONNECT_MAX_DELAY" default:"30s"`

	// Tracking
	TrackInactivityTimeout time.Duration `envconfig:"TRACK_INACTIVITY_TIMEOUT" default:"3s"`
	BoundingBoxIoU         float64       `envconfig:"BOUNDING_BOX_IOU_THRESHOLD" default:"0.3"`
	MaxFrameGap            uint64        `envconfig:"MAX_FRAME_GAP" default:"1"`

	// Dispatch
	WebhookURL    string `envconfig:"WEBHOOK_URL" default:""`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET" default:""`
	EventLogPath  string `envconfig:"EVENT_LOG_PATH" default:"events.jsonl"`
	RecentEvents  int    `envconfig:"RECENT_EVENTS" default:"256"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on values that would otherwise misbehave at runtime.
// A validation failure is fatal at startup.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		return domain.ErrInvalidThreshold.WithError(
			fmt.Errorf("similarity_threshold %v", c.SimilarityThreshold))
	}
	switch c.WatchlistBackend {
	case "sqlite", "postgresql", "redis", "memory":
	default:
		return domain.ErrUnknownBackend.WithError(
			fmt.Errorf("watchlist_backend %q", c.WatchlistBackend))
	}
	if c.EmbeddingSize <= 0 {
		return domain.ErrConfiguration.WithError(
			fmt.Errorf("embedding_size %d", c.EmbeddingSize))
	}
	if c.SampleRateFPS < 1 {
		return domain.ErrConfiguration.WithError(
			fmt.Errorf("sample_rate_fps %d", c.SampleRateFPS))
	}
	if c.Workers < 1 {
		return domain.ErrConfiguration.WithError(
			fmt.Errorf("workers %d", c.Workers))
	}
	if c.BoundingBoxIoU < 0 || c.BoundingBoxIoU > 1 {
		return domain.ErrConfiguration.WithError(
			fmt.Errorf("bounding_box_iou_threshold %v", c.BoundingBoxIoU))
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
