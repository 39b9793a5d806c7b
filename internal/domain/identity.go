package domain

import (
	"time"
)

// Identity representa uma pessoa cadastrada na watchlist
type Identity struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Embeddings  []Embedding `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// WatchlistEntry is one (identity, embedding) row as served to the index.
// One identity may contribute multiple rows; a match against any of them
// counts as a match for the identity.
type WatchlistEntry struct {
	IdentityID  string
	DisplayName string
	Embedding   Embedding
}
