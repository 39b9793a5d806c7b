package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Postgres stores embeddings in a pgvector column. Suited to watchlists shared
// across processes; the in-memory index still serves all matching queries.
type Postgres struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgres(ctx context.Context, databaseURL string, embeddingSize int) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, domain.ErrStore.WithError(fmt.Errorf("ping postgres: %w", err))
	}

	p := &Postgres{pool: pool, dim: embeddingSize}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS embeddings (
			id BIGSERIAL PRIMARY KEY,
			identity_id UUID NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_embeddings_identity ON embeddings(identity_id);
	`, p.dim)

	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("migrate postgres schema: %w", err))
	}
	return nil
}

func (p *Postgres) AddIdentity(ctx context.Context, displayName string) (string, error) {
	id := uuid.New()
	query := `INSERT INTO identities (id, display_name) VALUES ($1, $2)`
	if _, err := p.pool.Exec(ctx, query, id, displayName); err != nil {
		return "", domain.ErrStore.WithError(fmt.Errorf("add identity: %w", err))
	}
	return id.String(), nil
}

func (p *Postgres) AddEmbedding(ctx context.Context, identityID string, embedding domain.Embedding) error {
	if len(embedding) != p.dim {
		return domain.ErrInvalidVector.WithError(
			fmt.Errorf("got %d values, expected %d", len(embedding), p.dim))
	}

	vec := pgvector.NewVector(embedding)

	query := `
		INSERT INTO embeddings (identity_id, embedding)
		SELECT id, $2 FROM identities WHERE id = $1
	`
	result, err := p.pool.Exec(ctx, query, identityID, vec)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("add embedding: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}

	_, err = p.pool.Exec(ctx, `UPDATE identities SET updated_at = NOW() WHERE id = $1`, identityID)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("touch identity: %w", err))
	}
	return nil
}

func (p *Postgres) RemoveIdentity(ctx context.Context, identityID string) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, identityID)
	if err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("remove identity: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (p *Postgres) GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error) {
	var ident domain.Identity
	query := `SELECT id, display_name, created_at, updated_at FROM identities WHERE id = $1`
	err := p.pool.QueryRow(ctx, query, identityID).Scan(
		&ident.ID, &ident.DisplayName, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("get identity: %w", err))
	}

	rows, err := p.pool.Query(ctx,
		`SELECT embedding FROM embeddings WHERE identity_id = $1 ORDER BY id`, identityID)
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("get embeddings: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, domain.ErrStore.WithError(fmt.Errorf("scan embedding: %w", err))
		}
		ident.Embeddings = append(ident.Embeddings, domain.Embedding(vec.Slice()))
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStore.WithError(err)
	}
	return &ident, nil
}

func (p *Postgres) ListEmbeddings(ctx context.Context) ([]domain.WatchlistEntry, error) {
	// Repeatable-read snapshot: a rebuild never mixes rows from before and
	// after a concurrent enrollment.
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("begin snapshot tx: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT i.id, i.display_name, e.embedding
		FROM embeddings e
		JOIN identities i ON i.id = e.identity_id
		ORDER BY e.id
	`
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("list embeddings: %w", err))
	}
	defer rows.Close()

	var entries []domain.WatchlistEntry
	for rows.Next() {
		var entry domain.WatchlistEntry
		var id uuid.UUID
		var vec pgvector.Vector
		if err := rows.Scan(&id, &entry.DisplayName, &vec); err != nil {
			return nil, domain.ErrStore.WithError(fmt.Errorf("scan entry: %w", err))
		}
		entry.IdentityID = id.String()
		entry.Embedding = domain.Embedding(vec.Slice())
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrStore.WithError(err)
	}
	return entries, nil
}

func (p *Postgres) CountIdentities(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(1) FROM identities`).Scan(&count)
	if err != nil {
		return 0, domain.ErrStore.WithError(fmt.Errorf("count identities: %w", err))
	}
	return count, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
