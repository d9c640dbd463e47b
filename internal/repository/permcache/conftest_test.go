package permcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/selectd/internal/db"
	"github.com/kailas-cloud/selectd/internal/db/memory"
	"github.com/kailas-cloud/selectd/internal/domain"
)

// fakeDecider answers from a table and counts calls.
type fakeDecider struct {
	mu      sync.Mutex
	allow   map[string]bool
	calls   int
	err     error
	release chan struct{}
}

func newFakeDecider() *fakeDecider {
	return &fakeDecider{allow: make(map[string]bool)}
}

func (f *fakeDecider) set(user, view, action string, allowed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allow[user+"|"+view+"|"+action] = allowed
}

func (f *fakeDecider) Decide(_ context.Context, p domain.Principal, view, action string) (bool, error) {
	f.mu.Lock()
	f.calls++
	allowed, err, release := f.allow[p.ID+"|"+view+"|"+action], f.err, f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return allowed, err
}

func (f *fakeDecider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// mockStore implements the consumer interfaces with overridable behaviour.
type mockStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// patternStore exposes no Incr, so auto resolves to pattern deletion.
type patternStore struct {
	s *memory.Store
}

func (p patternStore) Get(ctx context.Context, key string) ([]byte, error) { return p.s.Get(ctx, key) }
func (p patternStore) SetWithTTL(ctx context.Context, key string, v []byte, ttl time.Duration) error {
	return p.s.SetWithTTL(ctx, key, v, ttl)
}
func (p patternStore) Del(ctx context.Context, keys ...string) error { return p.s.Del(ctx, keys...) }
func (p patternStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	return p.s.Scan(ctx, pattern)
}

func newMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(time.Hour)
	t.Cleanup(s.Close)
	return s
}

func newTestCache(t *testing.T, inner domain.Decider, s store, cfg Config) *CachedDecider {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	c, err := New(inner, s, cfg, Metrics{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func user(id string) domain.Principal {
	return domain.Principal{ID: id}
}
