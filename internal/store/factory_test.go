package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

func TestFactoryMemoryBackend(t *testing.T) {
	cfg := &config.Config{WatchlistBackend: "memory", EmbeddingSize: testDim}

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.IsType(t, &Memory{}, s)
}

func TestFactorySQLiteBackend(t *testing.T) {
	cfg := &config.Config{
		WatchlistBackend: "sqlite",
		DatabaseURL:      filepath.Join(t.TempDir(), "watchlist.db"),
		EmbeddingSize:    testDim,
	}

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.IsType(t, &SQLite{}, s)
}

func TestFactoryUnknownBackend(t *testing.T) {
	cfg := &config.Config{WatchlistBackend: "cassandra", EmbeddingSize: testDim}

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownBackend)
}
