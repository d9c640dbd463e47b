package search

import (
	"fmt"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/validation"
	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// Bind checks client predicates against the declared specs and returns the
// predicates to apply.
//
// Declared constants are always applied from server configuration. A client
// constant token must repeat a declared constant exactly; anything else is
// rejected, so a client cannot relax or invent a constant. A field token must
// name a declared (source, lookup) pair and pass the declared validator tag.
// Empty field values leave the collection unconstrained.
func Bind(declared []filterspec.Spec, client []filterspec.Predicate) ([]filterspec.Predicate, error) {
	out := make([]filterspec.Predicate, 0, len(declared)+len(client))
	consts := make(map[string]string)
	fields := make(map[string]filterspec.Spec)
	for _, s := range declared {
		if s.IsConst() {
			consts[s.Lookup] = s.Source
			out = append(out, filterspec.Predicate{Lookup: s.Lookup, Value: s.Source, Const: true})
			continue
		}
		fields[s.Source+"\x00"+s.Lookup] = s
	}

	for _, p := range client {
		if p.Const {
			want, ok := consts[p.Lookup]
			if !ok || want != p.Value {
				return nil, fmt.Errorf("%w: undeclared constant %s", domain.ErrInvalidFilter, p.Key())
			}
			continue
		}
		spec, ok := fields[p.Source+"\x00"+p.Lookup]
		if !ok {
			return nil, fmt.Errorf("%w: undeclared filter %s", domain.ErrInvalidFilter, p.Key())
		}
		if p.Value == "" {
			continue
		}
		if err := validation.Var(p.Source, p.Value, spec.Validate); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err)
		}
		out = append(out, p)
	}
	return out, nil
}
