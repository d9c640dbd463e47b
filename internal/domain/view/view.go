package view

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/filter"
	"github.com/kailas-cloud/selectd/internal/validation"
	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// View limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 500
	DefaultIDField  = "id"
	DefaultAction   = "view"
)

// Definition is the declarative form of a view, as decoded from configuration.
type Definition struct {
	Name         string            `yaml:"name" validate:"required,max=64,ident"`
	Source       string            `yaml:"source" validate:"required"`
	IDField      string            `yaml:"id_field" validate:"omitempty,ident"`
	SearchFields []string          `yaml:"search_fields" validate:"dive,required"`
	Ordering     []string          `yaml:"ordering" validate:"dive,required"`
	PageSize     int               `yaml:"page_size" validate:"gte=0,lte=500"`
	Fields       []string          `yaml:"fields" validate:"dive,required"`
	Rename       map[string]string `yaml:"rename" validate:"dive,keys,required,endkeys,required"`
	Derive       map[string]string `yaml:"derive" validate:"dive,keys,required,endkeys,required"`
	Filters      []filterspec.Spec `yaml:"-"`
	Excludes     []filterspec.Spec `yaml:"-"`
	Action       string            `yaml:"action"`

	SkipAuthorization bool `yaml:"skip_authorization"`
	AllowAnonymous    bool `yaml:"allow_anonymous"`
}

// OrderKey is one ordering column.
type OrderKey struct {
	Field string
	Desc  bool
}

// ParseOrderKey parses "name" or "-name".
func ParseOrderKey(s string) (OrderKey, error) {
	s = strings.TrimSpace(s)
	desc := strings.HasPrefix(s, "-")
	field := strings.TrimPrefix(s, "-")
	if field == "" {
		return OrderKey{}, fmt.Errorf("empty ordering key")
	}
	if err := validation.Var("ordering key", field, "ident"); err != nil {
		return OrderKey{}, err
	}
	return OrderKey{Field: field, Desc: desc}, nil
}

func (k OrderKey) String() string {
	if k.Desc {
		return "-" + k.Field
	}
	return k.Field
}

// View is a validated, immutable search endpoint definition.
type View struct {
	name         string
	source       string
	idField      string
	searchFields []string
	ordering     []OrderKey
	pageSize     int
	fields       []string
	rename       map[string]string
	derived      []Derived
	filters      []filterspec.Spec
	excludes     []filterspec.Spec
	action       string

	skipAuthorization bool
	allowAnonymous    bool
}

// New validates d and compiles its derived fields.
// Every failure is a domain.ErrConfiguration naming the view.
func New(d Definition) (View, error) {
	subject := "view " + d.Name
	if err := validation.Struct(d); err != nil {
		return View{}, domain.NewConfigurationError(subject, err)
	}

	v := View{
		name:              d.Name,
		source:            d.Source,
		idField:           d.IDField,
		searchFields:      append([]string(nil), d.SearchFields...),
		pageSize:          d.PageSize,
		fields:            append([]string(nil), d.Fields...),
		rename:            make(map[string]string, len(d.Rename)),
		filters:           append([]filterspec.Spec(nil), d.Filters...),
		excludes:          append([]filterspec.Spec(nil), d.Excludes...),
		action:            d.Action,
		skipAuthorization: d.SkipAuthorization,
		allowAnonymous:    d.AllowAnonymous,
	}
	if v.idField == "" {
		v.idField = DefaultIDField
	}
	if v.pageSize == 0 {
		v.pageSize = DefaultPageSize
	}
	if v.action == "" {
		v.action = DefaultAction
	}
	if err := checkRenames(d.Rename, v.idField); err != nil {
		return View{}, domain.NewConfigurationError(subject, err)
	}
	for k, val := range d.Rename {
		v.rename[k] = val
	}

	for _, lookup := range v.searchFields {
		if _, err := filter.Parse(lookup, "x"); err != nil {
			return View{}, domain.NewConfigurationError(subject, fmt.Errorf("search field: %w", err))
		}
	}
	for _, raw := range d.Ordering {
		k, err := ParseOrderKey(raw)
		if err != nil {
			return View{}, domain.NewConfigurationError(subject, err)
		}
		v.ordering = append(v.ordering, k)
	}
	if err := checkSpecs("filter", v.filters); err != nil {
		return View{}, domain.NewConfigurationError(subject, err)
	}
	if err := checkSpecs("exclude", v.excludes); err != nil {
		return View{}, domain.NewConfigurationError(subject, err)
	}

	derived, err := compileDerived(d.Derive)
	if err != nil {
		return View{}, domain.NewConfigurationError(subject, err)
	}
	v.derived = derived
	return v, nil
}

// checkRenames rejects renames whose result would depend on the order they
// are applied in, and renames that move the identity field.
func checkRenames(renames map[string]string, idField string) error {
	targets := make(map[string]string, len(renames))
	for _, from := range slices.Sorted(maps.Keys(renames)) {
		to := renames[from]
		switch {
		case from == "" || to == "":
			return fmt.Errorf("rename %q to %q: empty field name", from, to)
		case from == idField || to == idField:
			return fmt.Errorf("rename %q to %q: identity field %q cannot be renamed", from, to, idField)
		}
		if _, ok := renames[to]; ok {
			return fmt.Errorf("rename %q to %q: target is renamed itself", from, to)
		}
		if other, ok := targets[to]; ok {
			return fmt.Errorf("rename %q and %q share target %q", other, from, to)
		}
		targets[to] = from
	}
	return nil
}

func checkSpecs(kind string, specs []filterspec.Spec) error {
	seen := make(map[string]struct{}, len(specs))
	for i, s := range specs {
		if err := s.Check(); err != nil {
			return fmt.Errorf("%s %d: %w", kind, i, err)
		}
		operand := "1"
		if s.IsConst() {
			operand = s.Source
		}
		if _, err := filter.Parse(s.Lookup, operand); err != nil {
			return fmt.Errorf("%s %d: %w", kind, i, err)
		}
		if err := validation.CheckTag(s.Validate); err != nil {
			return fmt.Errorf("%s %d: %w", kind, i, err)
		}
		key := s.Source + "\x00" + s.Lookup
		if s.IsConst() {
			key = "\x00const\x00" + s.Lookup
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s %d: duplicate declaration %s", kind, i, s)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Name returns the view name used in URLs and permission keys.
func (v View) Name() string { return v.name }

// Source returns the name of the collection the view reads from.
func (v View) Source() string { return v.source }

// IDField returns the identity field used for tiebreaks and dedup.
func (v View) IDField() string { return v.idField }

// SearchFields returns the lookups ORed together for text search.
func (v View) SearchFields() []string { return v.searchFields }

// Ordering returns the configured ordering keys, without the identity tiebreak.
func (v View) Ordering() []OrderKey { return v.ordering }

// PageSize returns the fixed page size.
func (v View) PageSize() int { return v.pageSize }

// Fields returns the projected output fields; empty means all.
func (v View) Fields() []string { return v.fields }

// Rename returns the output renames, keyed by source field.
func (v View) Rename() map[string]string { return v.rename }

// Derived returns the compiled derived fields in name order.
func (v View) Derived() []Derived { return v.derived }

// Filters returns the declared filter specs.
func (v View) Filters() []filterspec.Spec { return v.filters }

// Excludes returns the declared exclude specs.
func (v View) Excludes() []filterspec.Spec { return v.excludes }

// Action returns the permission action checked for this view.
func (v View) Action() string { return v.action }

// SkipAuthorization reports whether the view bypasses the authorization gate.
func (v View) SkipAuthorization() bool { return v.skipAuthorization }

// AllowAnonymous reports whether anonymous principals may query the view.
func (v View) AllowAnonymous() bool { return v.allowAnonymous }
