package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
)

// Memory is an in-process backend for development and tests. It honors the
// same snapshot guarantees as the durable backends.
type Memory struct {
	mu         sync.RWMutex
	dim        int
	identities map[string]*domain.Identity
	order      []string
}

func NewMemory(embeddingSize int) *Memory {
	return &Memory{
		dim:        embeddingSize,
		identities: make(map[string]*domain.Identity),
	}
}

func (m *Memory) AddIdentity(_ context.Context, displayName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	now := time.Now().UTC()
	m.identities[id] = &domain.Identity{
		ID:          id,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) AddEmbedding(_ context.Context, identityID string, embedding domain.Embedding) error {
	if len(embedding) != m.dim {
		return domain.ErrInvalidVector.WithError(
			fmt.Errorf("got %d values, expected %d", len(embedding), m.dim))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.identities[identityID]
	if !ok {
		return domain.ErrIdentityNotFound
	}
	ident.Embeddings = append(ident.Embeddings, embedding.Clone())
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) RemoveIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[identityID]; !ok {
		return domain.ErrIdentityNotFound
	}
	delete(m.identities, identityID)
	for i, id := range m.order {
		if id == identityID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) GetIdentity(_ context.Context, identityID string) (*domain.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ident, ok := m.identities[identityID]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}

	out := &domain.Identity{
		ID:          ident.ID,
		DisplayName: ident.DisplayName,
		CreatedAt:   ident.CreatedAt,
		UpdatedAt:   ident.UpdatedAt,
	}
	for _, e := range ident.Embeddings {
		out.Embeddings = append(out.Embeddings, e.Clone())
	}
	return out, nil
}

func (m *Memory) ListEmbeddings(_ context.Context) ([]domain.WatchlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []domain.WatchlistEntry
	for _, id := range m.order {
		ident := m.identities[id]
		for _, e := range ident.Embeddings {
			entries = append(entries, domain.WatchlistEntry{
				IdentityID:  ident.ID,
				DisplayName: ident.DisplayName,
				Embedding:   e.Clone(),
			})
		}
	}
	return entries, nil
}

func (m *Memory) CountIdentities(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

func (m *Memory) Close() error { return nil }
