// Package collection is the queryset-like layer the search pipeline consumes.
// A Collection is immutable: every refinement returns a new value and leaves
// the receiver untouched, so hooks can branch freely.
package collection

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/filter"
	"github.com/kailas-cloud/selectd/internal/domain/view"
)

// Record is one row as returned by a backend.
type Record = map[string]any

// Query is the accumulated refinement passed to a backend.
type Query struct {
	Where filter.Expression
	Order []view.OrderKey
}

// Backend executes queries against one data source.
type Backend interface {
	Count(ctx context.Context, q Query) (int, error)
	Fetch(ctx context.Context, q Query, offset, limit int) ([]Record, error)
}

// Collection is an immutable query over a Backend.
type Collection struct {
	backend Backend
	query   Query
}

// New returns the unrefined collection over b.
func New(b Backend) Collection {
	return Collection{backend: b}
}

// Query returns the accumulated query.
func (c Collection) Query() Query { return c.query }

// Filter keeps records matching lookup=value.
func (c Collection) Filter(lookup, value string) (Collection, error) {
	cond, err := filter.Parse(lookup, value)
	if err != nil {
		return c, fmt.Errorf("%w: filter %s: %w", domain.ErrInvalidFilter, lookup, err)
	}
	where, err := c.query.Where.WithMust(cond)
	if err != nil {
		return c, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}
	return c.with(where), nil
}

// Exclude drops records matching lookup=value.
func (c Collection) Exclude(lookup, value string) (Collection, error) {
	cond, err := filter.Parse(lookup, value)
	if err != nil {
		return c, fmt.Errorf("%w: exclude %s: %w", domain.ErrInvalidFilter, lookup, err)
	}
	where, err := c.query.Where.WithMustNot(cond)
	if err != nil {
		return c, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}
	return c.with(where), nil
}

// Search keeps records where any of lookups matches text.
// Empty text or no lookups leaves the collection unchanged.
func (c Collection) Search(lookups []string, text string) (Collection, error) {
	if text == "" || len(lookups) == 0 {
		return c, nil
	}
	conds := make([]filter.Condition, 0, len(lookups))
	for _, l := range lookups {
		cond, err := filter.Parse(l, text)
		if err != nil {
			return c, fmt.Errorf("%w: search %s: %w", domain.ErrInvalidFilter, l, err)
		}
		conds = append(conds, cond)
	}
	where, err := c.query.Where.WithShould(conds...)
	if err != nil {
		return c, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
	}
	return c.with(where), nil
}

// OrderBy replaces the ordering.
func (c Collection) OrderBy(keys ...view.OrderKey) Collection {
	out := c
	out.query.Order = append([]view.OrderKey(nil), keys...)
	return out
}

// Count returns the number of matching records.
func (c Collection) Count(ctx context.Context) (int, error) {
	return c.backend.Count(ctx, c.query)
}

// Fetch returns up to limit matching records starting at offset.
func (c Collection) Fetch(ctx context.Context, offset, limit int) ([]Record, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("invalid window offset=%d limit=%d", offset, limit)
	}
	return c.backend.Fetch(ctx, c.query, offset, limit)
}

func (c Collection) with(where filter.Expression) Collection {
	out := c
	out.query.Where = where
	return out
}
