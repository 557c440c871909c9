// Package session owns per-thread state: the execution history and the lock
// that serializes its mutations.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/history"
)

type thread struct {
	mu         sync.Mutex
	id         string
	createdAt  time.Time
	lastActive time.Time
	records    int
	loaded     bool
}

// Registry is created once per deployment and torn down with Close.
type Registry struct {
	logger *zap.Logger
	store  history.Store
	now    func() time.Time

	mu      sync.Mutex
	threads map[string]*thread
	closed  bool
}

func NewRegistry(store history.Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = history.NewMemoryStore()
	}
	return &Registry{
		logger:  logger.Named("session"),
		store:   store,
		now:     time.Now,
		threads: make(map[string]*thread),
	}
}

func (r *Registry) get(threadID string) (*thread, error) {
	id := domain.NormalizeThreadID(threadID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.ErrStoreClosed
	}
	t, ok := r.threads[id]
	if !ok {
		now := r.now()
		t = &thread{id: id, createdAt: now, lastActive: now}
		r.threads[id] = t
	}
	return t, nil
}

// load counts records persisted before this process started. Caller holds t.mu.
func (r *Registry) load(ctx context.Context, t *thread) {
	if t.loaded {
		return
	}
	records, err := r.store.List(ctx, t.id)
	if err != nil {
		r.logger.Warn("load thread history failed", zap.String("thread", t.id), zap.Error(err))
		return
	}
	t.records = len(records)
	t.loaded = true
}

// Append adds one record to the thread's history.
func (r *Registry) Append(ctx context.Context, record domain.ExecutionRecord) error {
	t, err := r.get(record.ThreadID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	r.load(ctx, t)
	record.ThreadID = t.id
	if err := r.store.Append(ctx, record); err != nil {
		return err
	}
	t.records++
	t.lastActive = r.now()
	return nil
}

// History returns the thread's records, oldest first.
func (r *Registry) History(ctx context.Context, threadID string) ([]domain.ExecutionRecord, error) {
	t, err := r.get(threadID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	records, err := r.store.List(ctx, t.id)
	if err != nil {
		return nil, err
	}
	t.records = len(records)
	t.loaded = true
	return records, nil
}

// Clear drops the thread's history.
func (r *Registry) Clear(ctx context.Context, threadID string) error {
	t, err := r.get(threadID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := r.store.Clear(ctx, t.id); err != nil {
		return err
	}
	t.records = 0
	t.loaded = true
	t.lastActive = r.now()
	return nil
}

// Restore registers every thread found in the history store so that
// threads persisted by an earlier process are listed by Sessions.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	ids, err := r.store.Threads(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		t, err := r.get(id)
		if err != nil {
			return 0, err
		}
		t.mu.Lock()
		records, err := r.store.List(ctx, t.id)
		if err == nil {
			t.records = len(records)
			t.loaded = true
			if n := len(records); n > 0 && records[n-1].Timestamp.After(t.lastActive) {
				t.lastActive = records[n-1].Timestamp
			}
		}
		t.mu.Unlock()
		if err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Sessions lists the known threads, sorted by id.
func (r *Registry) Sessions() []domain.SessionInfo {
	r.mu.Lock()
	threads := make([]*thread, 0, len(r.threads))
	for _, t := range r.threads {
		threads = append(threads, t)
	}
	r.mu.Unlock()

	out := make([]domain.SessionInfo, 0, len(threads))
	for _, t := range threads {
		t.mu.Lock()
		out = append(out, domain.SessionInfo{
			ThreadID:   t.id,
			CreatedAt:  t.createdAt,
			LastActive: t.lastActive,
			Records:    t.records,
		})
		t.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadID < out[j].ThreadID })
	return out
}

// Close releases the history store. Later calls fail with ErrStoreClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.threads = make(map[string]*thread)
	r.mu.Unlock()
	return r.store.Close()
}
