// Package filterspec describes where filter values come from and how they
// travel between the loader and the server.
//
// A Spec is either field-derived (its value is read from another input at
// request time) or constant (its value is fixed when the spec is declared).
// Specs resolve into Predicates, and Predicates encode into the string tokens
// carried by the f and e query parameters.
package filterspec

import (
	"fmt"
	"strings"
)

// SourceType tells where a predicate value comes from.
type SourceType int

const (
	// SourceField reads the value from a named input at request time.
	SourceField SourceType = iota
	// SourceConst uses the literal value declared with the spec.
	SourceConst
)

// String returns the configuration name of the source type.
func (t SourceType) String() string {
	switch t {
	case SourceField:
		return "field"
	case SourceConst:
		return "const"
	default:
		return fmt.Sprintf("SourceType(%d)", int(t))
	}
}

// ParseSourceType parses "field" or "const".
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "field", "":
		return SourceField, nil
	case "const", "constant":
		return SourceConst, nil
	default:
		return 0, fmt.Errorf("%w: unknown source type %q", ErrConfiguration, s)
	}
}

// Spec is one filter declaration.
type Spec struct {
	// Source is the input name for SourceField, or the literal value for SourceConst.
	Source string
	// Lookup is forwarded verbatim to the collection layer.
	Lookup string
	Type   SourceType
	// Validate is an optional validator tag the server applies to field values.
	Validate string
}

// Pair is the short form of a field-derived spec: (source, lookup).
type Pair struct {
	Source string
	Lookup string
}

// Field declares a field-derived spec.
func Field(source, lookup string) Spec {
	return Spec{Source: source, Lookup: lookup, Type: SourceField}
}

// Const declares a constant spec. The value is stringified once, here.
func Const(value any, lookup string) Spec {
	return Spec{Source: stringify(value), Lookup: lookup, Type: SourceConst}
}

// WithValidate returns a copy of s carrying a server-side validator tag.
func (s Spec) WithValidate(tag string) Spec {
	s.Validate = tag
	return s
}

// IsConst reports whether the spec carries a literal value.
func (s Spec) IsConst() bool { return s.Type == SourceConst }

// Check validates the spec shape.
func (s Spec) Check() error {
	if s.Lookup == "" {
		return fmt.Errorf("%w: filter lookup is required", ErrConfiguration)
	}
	if strings.ContainsAny(s.Lookup, "=&") {
		return fmt.Errorf("%w: filter lookup %q contains reserved characters", ErrConfiguration, s.Lookup)
	}
	switch s.Type {
	case SourceField:
		if s.Source == "" {
			return fmt.Errorf("%w: field source is required for lookup %q", ErrConfiguration, s.Lookup)
		}
		if strings.Contains(s.Source, tokenSeparator) {
			return fmt.Errorf("%w: field source %q must not contain %q", ErrConfiguration, s.Source, tokenSeparator)
		}
		if strings.ContainsAny(s.Source, "=&") {
			return fmt.Errorf("%w: field source %q contains reserved characters", ErrConfiguration, s.Source)
		}
	case SourceConst:
		if strings.HasPrefix(s.Lookup, constPrefix) {
			return fmt.Errorf("%w: lookup %q uses the reserved constant prefix", ErrConfiguration, s.Lookup)
		}
	default:
		return fmt.Errorf("%w: unknown source type %d", ErrConfiguration, int(s.Type))
	}
	return nil
}

// String renders the spec for logs.
func (s Spec) String() string {
	if s.IsConst() {
		return fmt.Sprintf("const(%q)->%s", s.Source, s.Lookup)
	}
	return fmt.Sprintf("field(%s)->%s", s.Source, s.Lookup)
}

// Sources returns the distinct field names the specs depend on, in order.
func Sources(specs ...[]Spec) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range specs {
		for _, s := range list {
			if s.IsConst() {
				continue
			}
			if _, ok := seen[s.Source]; ok {
				continue
			}
			seen[s.Source] = struct{}{}
			out = append(out, s.Source)
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
