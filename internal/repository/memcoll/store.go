// Package memcoll is a collection backend over records held in memory.
// It serves small static option lists declared in configuration and tests.
package memcoll

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain/search/filter"
)

// Store holds a snapshot of records.
type Store struct {
	mu      sync.RWMutex
	records []collection.Record
}

// New creates a store over a copy of records.
func New(records []collection.Record) *Store {
	s := &Store{}
	s.Replace(records)
	return s
}

// Replace swaps the snapshot atomically.
func (s *Store) Replace(records []collection.Record) {
	cp := make([]collection.Record, len(records))
	for i, r := range records {
		cp[i] = maps.Clone(r)
	}
	s.mu.Lock()
	s.records = cp
	s.mu.Unlock()
}

// Count implements collection.Backend.
func (s *Store) Count(ctx context.Context, q collection.Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if q.Where.Evaluate(r) {
			n++
		}
	}
	return n, nil
}

// Fetch implements collection.Backend.
func (s *Store) Fetch(ctx context.Context, q collection.Query, offset, limit int) ([]collection.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]collection.Record, 0, len(s.records))
	for _, r := range s.records {
		if q.Where.Evaluate(r) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	if len(q.Order) > 0 {
		slices.SortStableFunc(matched, func(a, b collection.Record) int {
			for _, k := range q.Order {
				c := compareValues(a[k.Field], b[k.Field])
				if k.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if offset >= len(matched) {
		return []collection.Record{}, nil
	}
	end := min(offset+limit, len(matched))
	out := make([]collection.Record, 0, end-offset)
	for _, r := range matched[offset:end] {
		out = append(out, maps.Clone(r))
	}
	return out, nil
}

// compareValues orders nil first, then numerically when a parses as a
// number, then by wire representation.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return filter.Compare(a, filter.Stringify(b))
}
