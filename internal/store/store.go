// Package store owns persistent watchlist identity records. Backends are
// selected at startup via configuration; all of them serve a consistent
// snapshot for index rebuilds (copy-on-read, never a torn vector).
package store

import (
	"context"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// WatchlistStore is the capability set every backend must provide.
type WatchlistStore interface {
	// AddIdentity creates an identity and returns its id.
	AddIdentity(ctx context.Context, displayName string) (string, error)

	// AddEmbedding appends a normalized embedding to an identity.
	// Returns domain.ErrIdentityNotFound for an unknown id and
	// domain.ErrInvalidVector on dimensionality mismatch.
	AddEmbedding(ctx context.Context, identityID string, embedding domain.Embedding) error

	// RemoveIdentity deletes an identity and all of its embeddings.
	RemoveIdentity(ctx context.Context, identityID string) error

	// GetIdentity returns one identity with its embeddings.
	GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error)

	// ListEmbeddings returns a consistent snapshot of every (identity,
	// embedding) row, one per enrolled photo. Fed to index rebuilds.
	ListEmbeddings(ctx context.Context) ([]domain.WatchlistEntry, error)

	// CountIdentities returns the number of enrolled identities.
	CountIdentities(ctx context.Context) (int, error)

	Close() error
}
