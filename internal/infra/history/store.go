// Package history persists per-thread execution records in append order.
package history

import (
	"context"
	"sort"
	"sync"

	"toolgate/internal/domain"
)

// Store is an append-only log of execution records per thread.
type Store interface {
	Append(ctx context.Context, record domain.ExecutionRecord) error
	List(ctx context.Context, threadID string) ([]domain.ExecutionRecord, error)
	Threads(ctx context.Context) ([]string, error)
	Clear(ctx context.Context, threadID string) error
	Close() error
}

type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]domain.ExecutionRecord
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string][]domain.ExecutionRecord)}
}

func (m *MemoryStore) Append(_ context.Context, record domain.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrStoreClosed
	}
	thread := domain.NormalizeThreadID(record.ThreadID)
	record.ThreadID = thread
	m.threads[thread] = append(m.threads[thread], record)
	return nil
}

func (m *MemoryStore) List(_ context.Context, threadID string) ([]domain.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStoreClosed
	}
	records := m.threads[domain.NormalizeThreadID(threadID)]
	out := make([]domain.ExecutionRecord, len(records))
	copy(out, records)
	return out, nil
}

func (m *MemoryStore) Threads(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStoreClosed
	}
	out := make([]string, 0, len(m.threads))
	for thread := range m.threads {
		out = append(out, thread)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrStoreClosed
	}
	delete(m.threads, domain.NormalizeThreadID(threadID))
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.threads = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
