package filterspec

import (
	"fmt"
	"strings"
)

// Normalize collapses every accepted declaration shape into one list of specs.
//
// Accepted shapes:
//   - nil: no filtering
//   - a single pair: Pair, [2]string, []string{source, lookup}, []any{source, lookup}
//   - a single spec: Spec, or a map with keys field|source, const|value, lookup,
//     type|source_type and validate (the form YAML decodes into)
//   - a list ([]Spec, []Pair, []any) mixing any of the above
//
// Every entry is checked; the first malformed entry aborts with ErrConfiguration.
func Normalize(decl any) ([]Spec, error) {
	specs, err := normalize(decl)
	if err != nil {
		return nil, err
	}
	for i, s := range specs {
		if err := s.Check(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return specs, nil
}

// MustNormalize is Normalize for static declarations; it panics on error.
func MustNormalize(decl any) []Spec {
	specs, err := Normalize(decl)
	if err != nil {
		panic(err)
	}
	return specs
}

func normalize(decl any) ([]Spec, error) {
	switch v := decl.(type) {
	case nil:
		return nil, nil
	case Spec:
		return []Spec{v}, nil
	case *Spec:
		if v == nil {
			return nil, nil
		}
		return []Spec{*v}, nil
	case Pair:
		return []Spec{Field(v.Source, v.Lookup)}, nil
	case [2]string:
		return []Spec{Field(v[0], v[1])}, nil
	case []Spec:
		return append([]Spec(nil), v...), nil
	case []Pair:
		out := make([]Spec, len(v))
		for i, p := range v {
			out[i] = Field(p.Source, p.Lookup)
		}
		return out, nil
	case []string:
		if len(v) == 0 {
			return nil, nil
		}
		if len(v) != 2 {
			return nil, fmt.Errorf("%w: a pair needs exactly 2 elements, got %d", ErrConfiguration, len(v))
		}
		return []Spec{Field(v[0], v[1])}, nil
	case map[string]any:
		s, err := specFromMap(v)
		if err != nil {
			return nil, err
		}
		return []Spec{s}, nil
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = val
		}
		s, err := specFromMap(m)
		if err != nil {
			return nil, err
		}
		return []Spec{s}, nil
	case []any:
		if p, ok := pairFromList(v); ok {
			return []Spec{p}, nil
		}
		out := make([]Spec, 0, len(v))
		for i, item := range v {
			s, err := entry(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported declaration type %T", ErrConfiguration, decl)
	}
}

// entry normalizes one element of a list declaration.
func entry(item any) (Spec, error) {
	switch v := item.(type) {
	case []any:
		p, ok := pairFromList(v)
		if !ok {
			return Spec{}, fmt.Errorf("%w: list entries must be [source, lookup] pairs", ErrConfiguration)
		}
		return p, nil
	case string:
		return Spec{}, fmt.Errorf("%w: bare string %q is not a filter entry", ErrConfiguration, v)
	default:
		specs, err := normalize(item)
		if err != nil {
			return Spec{}, err
		}
		if len(specs) != 1 {
			return Spec{}, fmt.Errorf("%w: nested lists are not allowed", ErrConfiguration)
		}
		return specs[0], nil
	}
}

func pairFromList(v []any) (Spec, bool) {
	if len(v) != 2 {
		return Spec{}, false
	}
	source, ok1 := v[0].(string)
	lookup, ok2 := v[1].(string)
	if !ok1 || !ok2 {
		return Spec{}, false
	}
	return Field(source, lookup), true
}

func specFromMap(m map[string]any) (Spec, error) {
	var s Spec
	typeName, hasType := firstString(m, "type", "source_type")
	if hasType {
		t, err := ParseSourceType(typeName)
		if err != nil {
			return Spec{}, err
		}
		s.Type = t
	}

	fieldName, hasField := firstString(m, "field", "source")
	constVal, hasConst := firstValue(m, "const", "value")

	switch {
	case hasField && hasConst:
		return Spec{}, fmt.Errorf("%w: entry declares both a field and a constant", ErrConfiguration)
	case hasConst:
		if hasType && s.Type != SourceConst {
			return Spec{}, fmt.Errorf("%w: constant value declared with type %q", ErrConfiguration, typeName)
		}
		s.Type = SourceConst
		s.Source = stringify(constVal)
	case hasField:
		// "source" with type const carries the literal, mirroring the wire model.
		s.Source = fieldName
	default:
		return Spec{}, fmt.Errorf("%w: entry needs a field or a const value", ErrConfiguration)
	}

	lookup, ok := firstString(m, "lookup")
	if !ok {
		return Spec{}, fmt.Errorf("%w: entry is missing lookup", ErrConfiguration)
	}
	s.Lookup = lookup

	if tag, ok := firstString(m, "validate"); ok {
		s.Validate = tag
	}

	for k := range m {
		switch k {
		case "type", "source_type", "field", "source", "const", "value", "lookup", "validate":
		default:
			return Spec{}, fmt.Errorf("%w: unknown key %q", ErrConfiguration, k)
		}
	}
	return s, nil
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	v, ok := firstValue(m, keys...)
	if !ok {
		return "", false
	}
	s, isStr := v.(string)
	if !isStr {
		return stringify(v), true
	}
	return strings.TrimSpace(s), true
}

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}
