package filterspec

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	tokenSeparator = "__"
	constPrefix    = "__const__"
)

// Values provides the current value of named inputs.
type Values interface {
	Value(name string) (string, bool)
}

// MapValues is a Values backed by a plain map.
type MapValues map[string]string

// Value returns the value stored under name.
func (m MapValues) Value(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// Predicate is a resolved spec: a lookup paired with a concrete value.
type Predicate struct {
	Source string // input name; empty for constants
	Lookup string
	Value  string
	Const  bool
}

// Resolve turns specs into predicates using env for field-derived values.
// Absent or empty fields resolve to "" and are still included.
func Resolve(specs []Spec, env Values) []Predicate {
	if len(specs) == 0 {
		return nil
	}
	out := make([]Predicate, 0, len(specs))
	for _, s := range specs {
		if s.IsConst() {
			out = append(out, Predicate{Lookup: s.Lookup, Value: s.Source, Const: true})
			continue
		}
		var v string
		if env != nil {
			v, _ = env.Value(s.Source)
		}
		out = append(out, Predicate{Source: s.Source, Lookup: s.Lookup, Value: v})
	}
	return out
}

// Token encodes the predicate for the f and e query parameters:
// field values as source__lookup=value, constants as __const__lookup=value.
func (p Predicate) Token() string {
	if p.Const {
		return constPrefix + p.Lookup + "=" + p.Value
	}
	return p.Source + tokenSeparator + p.Lookup + "=" + p.Value
}

// Key returns the token without its value.
func (p Predicate) Key() string {
	if p.Const {
		return constPrefix + p.Lookup
	}
	return p.Source + tokenSeparator + p.Lookup
}

// ParseToken decodes a wire token.
func ParseToken(tok string) (Predicate, error) {
	key, value, ok := strings.Cut(tok, "=")
	if !ok || key == "" {
		return Predicate{}, malformed(tok, "missing '='")
	}
	if rest, isConst := strings.CutPrefix(key, constPrefix); isConst {
		if rest == "" {
			return Predicate{}, malformed(tok, "empty constant lookup")
		}
		return Predicate{Lookup: rest, Value: value, Const: true}, nil
	}
	source, lookup, ok := strings.Cut(key, tokenSeparator)
	if !ok || source == "" || lookup == "" {
		return Predicate{}, malformed(tok, "expected source__lookup")
	}
	return Predicate{Source: source, Lookup: lookup, Value: value}, nil
}

// ParseTokens decodes a list of tokens, stopping at the first malformed one.
func ParseTokens(tokens []string) ([]Predicate, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	out := make([]Predicate, 0, len(tokens))
	for _, t := range tokens {
		p, err := ParseToken(t)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Tokens encodes predicates in order.
func Tokens(preds []Predicate) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.Token()
	}
	return out
}

// Encode writes query, filters, excludes and page into q using the wire
// parameter names. page <= 1 is omitted so first-page URLs stay canonical.
func Encode(q url.Values, text string, filters, excludes []Predicate, page int) {
	q.Set("q", text)
	q["f"] = Tokens(filters)
	q["e"] = Tokens(excludes)
	if len(filters) == 0 {
		q.Del("f")
	}
	if len(excludes) == 0 {
		q.Del("e")
	}
	q.Del("p")
	if page > 1 {
		q.Set("p", strconv.Itoa(page))
	}
}

func malformed(tok, why string) error {
	return &TokenError{Token: tok, Reason: why}
}

// TokenError describes a token that failed to decode.
type TokenError struct {
	Token  string
	Reason string
}

func (e *TokenError) Error() string {
	return ErrMalformedToken.Error() + " " + strconv.Quote(e.Token) + ": " + e.Reason
}

func (e *TokenError) Unwrap() error { return ErrMalformedToken }
