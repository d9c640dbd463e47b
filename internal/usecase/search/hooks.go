package search

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain/search/request"
	"github.com/kailas-cloud/selectd/internal/domain/search/result"
	"github.com/kailas-cloud/selectd/internal/domain/view"
	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// Stage is what every pipeline step sees about the current execution.
type Stage struct {
	View    view.View
	Request *request.Request
	// Base is the unrefined collection of the view's source.
	Base collection.Collection
}

// StepFunc refines a collection.
type StepFunc func(ctx context.Context, st Stage, c collection.Collection) (collection.Collection, error)

// Window is one paginated slice of a collection.
type Window struct {
	Records []collection.Record
	Count   int
}

// PaginateFunc cuts the requested page out of a collection.
type PaginateFunc func(ctx context.Context, st Stage, c collection.Collection) (Window, error)

// ShapeFunc adjusts one shaped record before encoding.
type ShapeFunc func(ctx context.Context, st Stage, rec result.Record) (result.Record, error)

// Hooks override pipeline steps. A nil hook runs the default step; a set hook
// replaces it (the Default* functions can be called to wrap the default).
// Shape is the exception: it runs after the default projection, renames and
// derived fields.
type Hooks struct {
	BaseCollection StepFunc
	Filtered       StepFunc
	Excluded       StepFunc
	Searched       StepFunc
	Ordered        StepFunc
	Paginate       PaginateFunc
	Shape          ShapeFunc
}

// DefaultBaseCollection returns the view's source collection unchanged.
func DefaultBaseCollection(_ context.Context, st Stage, _ collection.Collection) (collection.Collection, error) {
	return st.Base, nil
}

// DefaultFiltered applies the bound filter predicates as AND constraints.
func DefaultFiltered(_ context.Context, st Stage, c collection.Collection) (collection.Collection, error) {
	preds, err := Bind(st.View.Filters(), st.Request.Filters())
	if err != nil {
		return c, fmt.Errorf("bind filters: %w", err)
	}
	return applyPredicates(c, preds, collection.Collection.Filter)
}

// DefaultExcluded subtracts records matching each bound exclude predicate.
func DefaultExcluded(_ context.Context, st Stage, c collection.Collection) (collection.Collection, error) {
	preds, err := Bind(st.View.Excludes(), st.Request.Excludes())
	if err != nil {
		return c, fmt.Errorf("bind excludes: %w", err)
	}
	return applyPredicates(c, preds, collection.Collection.Exclude)
}

func applyPredicates(
	c collection.Collection, preds []filterspec.Predicate,
	apply func(collection.Collection, string, string) (collection.Collection, error),
) (collection.Collection, error) {
	var err error
	for _, p := range preds {
		if c, err = apply(c, p.Lookup, p.Value); err != nil {
			return c, err
		}
	}
	return c, nil
}

// DefaultSearched ORs the view's search lookups against non-empty text.
func DefaultSearched(_ context.Context, st Stage, c collection.Collection) (collection.Collection, error) {
	return c.Search(st.View.SearchFields(), st.Request.Text())
}

// DefaultOrdered orders by the view's keys with the identity field as tiebreak.
func DefaultOrdered(_ context.Context, st Stage, c collection.Collection) (collection.Collection, error) {
	return c.OrderBy(orderKeys(st.View)...), nil
}

func orderKeys(v view.View) []view.OrderKey {
	keys := slices.Clone(v.Ordering())
	for _, k := range keys {
		if k.Field == v.IDField() {
			return keys
		}
	}
	return append(keys, view.OrderKey{Field: v.IDField()})
}

// DefaultPaginate counts and fetches the requested page concurrently.
func DefaultPaginate(ctx context.Context, st Stage, c collection.Collection) (Window, error) {
	size := st.View.PageSize()
	offset := (st.Request.Page() - 1) * size

	var w Window
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.Count(gctx)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		w.Count = n
		return nil
	})
	g.Go(func() error {
		recs, err := c.Fetch(gctx, offset, size)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		w.Records = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// shape projects fields, applies renames and evaluates derived fields.
func shape(ctx context.Context, v view.View, rec collection.Record) (result.Record, error) {
	out := make(result.Record, len(rec))
	if fields := v.Fields(); len(fields) > 0 {
		for _, f := range fields {
			if val, ok := rec[f]; ok {
				out[f] = val
			}
		}
		if _, ok := out[v.IDField()]; !ok {
			if id, ok := rec[v.IDField()]; ok {
				out[v.IDField()] = id
			}
		}
	} else {
		for k, val := range rec {
			out[k] = val
		}
	}

	if renames := v.Rename(); len(renames) > 0 {
		projected := maps.Clone(out)
		for from := range renames {
			delete(out, from)
		}
		for from, to := range renames {
			if val, ok := projected[from]; ok {
				out[to] = val
			}
		}
	}

	for _, d := range v.Derived() {
		val, err := d.Eval(ctx, rec)
		if err != nil {
			return nil, err
		}
		out[d.Name()] = val
	}
	return out, nil
}
