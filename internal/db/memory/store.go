// Package memory implements db.Store in process memory for single-instance
// deployments and tests.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/selectd/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

const defaultGCInterval = time.Minute

// Store keeps values in a mutex-guarded map. Expired entries are invisible
// immediately and reclaimed by a background sweep.
type Store struct {
	mu         sync.RWMutex
	data       map[string]entry
	now        func() time.Time
	gcInterval time.Duration
	stopCh     chan struct{}
	closeOnce  sync.Once
}

type entry struct {
	value []byte
	// zero means no expiry
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// New creates a store and starts its sweeper.
func New(gcInterval time.Duration) *Store {
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}
	s := &Store{
		data:       make(map[string]entry),
		now:        time.Now,
		gcInterval: gcInterval,
		stopCh:     make(chan struct{}),
	}
	go s.gc()
	return s
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	select {
	case <-s.stopCh:
		return db.ErrClosed
	default:
		return nil
	}
}

// WaitForReady returns immediately; an in-memory store is always ready.
func (s *Store) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

// Close stops the sweeper. Further calls are no-ops.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
}

// Get retrieves a live value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || e.expired(s.now()) {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// SetWithTTL stores a copy of value that expires after ttl.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return &db.Error{Op: db.OpSet, Err: fmt.Errorf("ttl must be positive, got %s", ttl)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{value: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	return nil
}

// Del removes keys; missing keys are ignored.
func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Incr atomically increments a persistent decimal counter.
func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if e, ok := s.data[key]; ok && !e.expired(s.now()) {
		v, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, &db.Error{Op: db.OpIncr, Err: err}
		}
		n = v
	}
	n++
	s.data[key] = entry{value: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}

// Scan returns live keys matching a glob pattern. path.Match agrees with
// Redis for '*', '?', classes and '\' escapes, except that '*' stops at '/'.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, &db.Error{Op: db.OpScan, Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var keys []string
	for k, e := range s.data {
		if e.expired(now) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Store) gc() {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.data {
		if e.expired(now) {
			delete(s.data, k)
		}
	}
}
