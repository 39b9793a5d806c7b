package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

const (
	redisIdentitySet    = "vigia:identities"
	redisIdentityPrefix = "vigia:identity:"
)

// Redis keeps the watchlist in redis hashes and lists. Each embedding is one
// JSON list element, read and written whole, so a vector is never torn.
type Redis struct {
	client *redis.Client
	dim    int
}

type redisIdentity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewRedis(ctx context.Context, addr string, embeddingSize int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.ErrStore.WithError(fmt.Errorf("ping redis: %w", err))
	}

	return &Redis{client: client, dim: embeddingSize}, nil
}

func identityKey(id string) string   { return redisIdentityPrefix + id }
func embeddingsKey(id string) string { return redisIdentityPrefix + id + ":embeddings" }

func (r *Redis) AddIdentity(ctx context.Context, displayName string) (string, error) {
	now := time.Now().UTC()
	ident := redisIdentity{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	payload, err := json.Marshal(ident)
	if err != nil {
		return "", fmt.Errorf("marshal identity: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, identityKey(ident.ID), payload, 0)
	pipe.SAdd(ctx, redisIdentitySet, ident.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", domain.ErrStore.WithError(fmt.Errorf("add identity: %w", err))
	}
	return ident.ID, nil
}

func (r *Redis) AddEmbedding(ctx context.Context, identityID string, embedding domain.Embedding) error {
	if len(embedding) != r.dim {
		return domain.ErrInvalidVector.WithError(
			fmt.Errorf("got %d values, expected %d", len(embedding), r.dim))
	}

	ident, err := r.getIdentityRecord(ctx, identityID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal([]float32(embedding))
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}

	ident.UpdatedAt = time.Now().UTC()
	identPayload, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, embeddingsKey(identityID), payload)
	pipe.Set(ctx, identityKey(identityID), identPayload, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("add embedding: %w", err))
	}
	return nil
}

func (r *Redis) RemoveIdentity(ctx context.Context, identityID string) error {
	if _, err := r.getIdentityRecord(ctx, identityID); err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, identityKey(identityID), embeddingsKey(identityID))
	pipe.SRem(ctx, redisIdentitySet, identityID)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ErrStore.WithError(fmt.Errorf("remove identity: %w", err))
	}
	return nil
}

func (r *Redis) GetIdentity(ctx context.Context, identityID string) (*domain.Identity, error) {
	record, err := r.getIdentityRecord(ctx, identityID)
	if err != nil {
		return nil, err
	}

	ident := &domain.Identity{
		ID:          record.ID,
		DisplayName: record.DisplayName,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}

	payloads, err := r.client.LRange(ctx, embeddingsKey(identityID), 0, -1).Result()
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("get embeddings: %w", err))
	}
	for _, payload := range payloads {
		embedding, err := decodeEmbedding(payload, r.dim)
		if err != nil {
			return nil, err
		}
		ident.Embeddings = append(ident.Embeddings, embedding)
	}
	return ident, nil
}

func (r *Redis) ListEmbeddings(ctx context.Context) ([]domain.WatchlistEntry, error) {
	ids, err := r.client.SMembers(ctx, redisIdentitySet).Result()
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("list identities: %w", err))
	}

	var entries []domain.WatchlistEntry
	for _, id := range ids {
		record, err := r.getIdentityRecord(ctx, id)
		if errors.Is(err, domain.ErrIdentityNotFound) {
			// Removed between SMEMBERS and GET; skip.
			continue
		}
		if err != nil {
			return nil, err
		}

		payloads, err := r.client.LRange(ctx, embeddingsKey(id), 0, -1).Result()
		if err != nil {
			return nil, domain.ErrStore.WithError(fmt.Errorf("list embeddings: %w", err))
		}
		for _, payload := range payloads {
			embedding, err := decodeEmbedding(payload, r.dim)
			if err != nil {
				return nil, err
			}
			entries = append(entries, domain.WatchlistEntry{
				IdentityID:  record.ID,
				DisplayName: record.DisplayName,
				Embedding:   embedding,
			})
		}
	}
	return entries, nil
}

func (r *Redis) CountIdentities(ctx context.Context) (int, error) {
	count, err := r.client.SCard(ctx, redisIdentitySet).Result()
	if err != nil {
		return 0, domain.ErrStore.WithError(fmt.Errorf("count identities: %w", err))
	}
	return int(count), nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) getIdentityRecord(ctx context.Context, identityID string) (*redisIdentity, error) {
	payload, err := r.client.Get(ctx, identityKey(identityID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("get identity: %w", err))
	}

	var record redisIdentity
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, domain.ErrStore.WithError(fmt.Errorf("decode identity: %w", err))
	}
	return &record, nil
}
