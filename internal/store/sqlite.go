package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// SQLite is the default backend: a single local file, no external service.
type SQLite struct {
	db  *sql.DB
	dim int
}

func NewSQLite(path string, embeddingSize int) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writers; one open connection avoids lock contention.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, dim: embeddingSize}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			embedding TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_embeddings_identity ON embeddings(identity_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLite) AddIdentity(ctx context.Context, displayName string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	query := `INSERT INTO identities (id, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, displayName, now, now); err != nil {
		return "", domain.ErrStore.WithError(fmt.Errorf("add identity: %w", err))
	}
	return id, nil
}

func (s *SQLite) AddEmbedding(ctx context.Context, identityID string, embedding domain.Embedding) error {
	if len(embedding) != s.dim {
		return domain.ErrInvalidVector.WithError(
			fmt.Errorf("got %d values, expected %d", len(embedding), s.dim))
	}

	payload, err := json.Marshal([]float32(embedding))
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM identities WHERE id = ?`, identityID).Scan(&exists)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("check identity: %w", err))
	}
	if exists == 0 {
		return domain.ErrIdentityNotFound
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO embeddings (identity_id, embedding, created_at) VALUES (?, ?, ?)`,
		identityID, string(payload), now)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("add embedding: %w", err))
	}

	_, err = tx.ExecContext(ctx, `UPDATE identities SET updated_at = ? WHERE id = ?`, now, identityID)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("touch identity: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *SQLite) RemoveIdentity(ctx context.Context, identityID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, identityID)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("remove identity: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.ErrStore.WithError(err)
	}
	if affected == 0 {
		return domain.ErrIdentityNotFound
	}

	// ON DELETE CASCADE requires foreign_keys pragma; delete explicitly so the
	// behavior does not depend on connection settings.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE identity_id = ?`, identityID); err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("remove embeddings: %w", err))
	}
	return nil
}

func (s *SQLite) GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error) {
	var ident domain.Identity
	query := `SELECT id, display_name, created_at, updated_at FROM identities WHERE id = ?`
	err := s.db.QueryRowContext(ctx, query, identityID).Scan(
		&ident.ID, &ident.DisplayName, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("get identity: %w", err))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT embedding FROM embeddings WHERE identity_id = ? ORDER BY id`, identityID)
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("get embeddings: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, domain.ErrStore.WithError(fmt.Errorf("scan embedding: %w", err))
		}
		embedding, err := decodeEmbedding(payload, s.dim)
		if err != nil {
			return nil, err
		}
		ident.Embeddings = append(ident.Embeddings, embedding)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStore.WithError(err)
	}
	return &ident, nil
}

func (s *SQLite) ListEmbeddings(ctx context.Context) ([]domain.WatchlistEntry, error) {
	// Read inside one transaction so rebuilds see a consistent snapshot even
	// with concurrent enrollment.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("begin snapshot tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		SELECT i.id, i.display_name, e.embedding
		FROM embeddings e
		JOIN identities i ON i.id = e.identity_id
		ORDER BY e.id
	`
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("list embeddings: %w", err))
	}
	defer rows.Close()

	var entries []domain.WatchlistEntry
	for rows.Next() {
		var entry domain.WatchlistEntry
		var payload string
		if err := rows.Scan(&entry.IdentityID, &entry.DisplayName, &payload); err != nil {
			return nil, domain.ErrStore.WithError(fmt.Errorf("scan entry: %w", err))
		}
		entry.Embedding, err = decodeEmbedding(payload, s.dim)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStore.WithError(err)
	}
	return entries, nil
}

func (s *SQLite) CountIdentities(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM identities`).Scan(&count)
	if err != nil {
		return 0, domain.ErrStore.WithError(fmt.Errorf("count identities: %w", err))
	}
	return count, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func decodeEmbedding(payload string, dim int) (domain.Embedding, error) {
	var values []float32
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("decode embedding: %w", err))
	}
	if len(values) != dim {
		return nil, domain.ErrInvalidVector.WithError(
			fmt.Errorf("stored embedding has %d values, expected %d", len(values), dim))
	}
	return domain.Embedding(values), nil
}
