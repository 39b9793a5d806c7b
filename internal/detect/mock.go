package detect

import (
	"context"
	"sync"
)

// Mock is a deterministic in-memory detector for tests and local development.
// Responses are returned in the order they were queued; once drained, the
// fallback (possibly empty) response is returned.
type Mock struct {
	mu       sync.Mutex
	queue    [][]Face
	fallback []Face
	err      error
	calls    int
}

func NewMock() *Mock {
	return &Mock{}
}

// Enqueue adds a one-shot response.
func (m *Mock) Enqueue(faces []Face) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, faces)
	return m
}

// Always sets the fallback response used when the queue is empty.
func (m *Mock) Always(faces []Face) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = faces
	return m
}

// Fail makes every call return err until cleared.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) DetectAndEmbed(_ context.Context, _ []byte) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		faces := m.queue[0]
		m.queue = m.queue[1:]
		return faces, nil
	}
	return m.fallback, nil
}
