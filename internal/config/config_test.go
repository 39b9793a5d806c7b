package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "sqlite", cfg.WatchlistBackend)
	assert.Equal(t, 0.35, cfg.SimilarityThreshold)
	assert.Equal(t, 512, cfg.EmbeddingSize)
	assert.Equal(t, 500*time.Millisecond, cfg.RebuildDebounce)
	assert.Equal(t, "http://localhost:5000", cfg.DetectorURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 3*time.Second, cfg.TrackInactivityTimeout)
	assert.Equal(t, 0.3, cfg.BoundingBoxIoU)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ENV", "production")
	t.Setenv("WATCHLIST_BACKEND", "memory")
	t.Setenv("SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("REBUILD_DEBOUNCE", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "memory", cfg.WatchlistBackend)
	assert.Equal(t, 0.5, cfg.SimilarityThreshold)
	assert.Equal(t, 2*time.Second, cfg.RebuildDebounce)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WatchlistBackend:    "sqlite",
			SimilarityThreshold: 0.35,
			EmbeddingSize:       512,
			SampleRateFPS:       1,
			Workers:             4,
			BoundingBoxIoU:      0.3,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "threshold at lower bound",
			mutate: func(c *Config) { c.SimilarityThreshold = -1 },
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.SimilarityThreshold = 1.5 },
			wantErr: domain.ErrInvalidThreshold,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.WatchlistBackend = "dynamo" },
			wantErr: domain.ErrUnknownBackend,
		},
		{
			name:    "zero embedding size",
			mutate:  func(c *Config) { c.EmbeddingSize = 0 },
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "zero sample rate",
			mutate:  func(c *Config) { c.SampleRateFPS = 0 },
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: domain.ErrConfiguration,
		},
		{
			name:    "iou above one",
			mutate:  func(c *Config) { c.BoundingBoxIoU = 1.1 },
			wantErr: domain.ErrConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
