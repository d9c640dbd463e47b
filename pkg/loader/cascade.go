package loader

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// resolveSource maps a dependency of field to a concrete input name. Inputs
// of repeated groups carry a "<prefix>-<index>-" prefix; the innermost group
// of field that has source wins, then outer groups, then the bare name.
func resolveSource(form filterspec.Values, field, source string) string {
	if form == nil {
		return source
	}
	parts := strings.Split(field, "-")
	for i := len(parts) - 1; i > 0; i-- {
		if !isIndex(parts[i-1]) {
			continue
		}
		cand := strings.Join(parts[:i], "-") + "-" + source
		if _, ok := form.Value(cand); ok {
			return cand
		}
	}
	return source
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// scopedValues resolves field-derived sources relative to one input.
type scopedValues struct {
	form  filterspec.Values
	field string
}

func (s scopedValues) Value(name string) (string, bool) {
	if s.form == nil {
		return "", false
	}
	return s.form.Value(resolveSource(s.form, s.field, name))
}

// Registry holds the loaders of one form, keyed by field name.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]*Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[string]*Loader)}
}

// Get returns the loader bound to field.
func (r *Registry) Get(field string) (*Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[field]
	return l, ok
}

// Set binds l to field, replacing any previous loader.
func (r *Registry) Set(field string, l *Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[field] = l
}

// Delete removes the loader of field.
func (r *Registry) Delete(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loaders, field)
}

// Range calls fn for every loader in field order until fn returns false.
func (r *Registry) Range(fn func(field string, l *Loader) bool) {
	r.mu.RLock()
	fields := make([]string, 0, len(r.loaders))
	for f := range r.loaders {
		fields = append(fields, f)
	}
	r.mu.RUnlock()
	slices.Sort(fields)

	for _, f := range fields {
		l, ok := r.Get(f)
		if !ok {
			continue
		}
		if !fn(f, l) {
			return
		}
	}
}

// Len returns the number of registered loaders.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loaders)
}

// Controller resets dependent loaders when the inputs they filter on change.
type Controller struct {
	reg  *Registry
	form filterspec.Values

	mu sync.Mutex
	// deps maps a resolved source input to the fields that depend on it.
	deps  map[string]map[string]struct{}
	bound map[string][]string
}

// NewController creates a controller over the loaders in reg. form is used to
// resolve sources of repeated groups.
func NewController(reg *Registry, form filterspec.Values) *Controller {
	return &Controller{
		reg:   reg,
		form:  form,
		deps:  make(map[string]map[string]struct{}),
		bound: make(map[string][]string),
	}
}

// Bind subscribes the loader of field to the inputs named by its field-derived
// filters and excludes. It returns the resolved source names. Binding again
// replaces the previous subscription.
func (c *Controller) Bind(field string) ([]string, error) {
	l, ok := c.reg.Get(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, field)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbindLocked(field)

	var sources []string
	for _, dep := range l.Dependencies() {
		src := resolveSource(c.form, field, dep)
		if slices.Contains(sources, src) {
			continue
		}
		sources = append(sources, src)
		if c.deps[src] == nil {
			c.deps[src] = make(map[string]struct{})
		}
		c.deps[src][field] = struct{}{}
	}
	c.bound[field] = sources
	return sources, nil
}

// Unbind drops the subscriptions of field.
func (c *Controller) Unbind(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbindLocked(field)
}

func (c *Controller) unbindLocked(field string) {
	for _, src := range c.bound[field] {
		delete(c.deps[src], field)
		if len(c.deps[src]) == 0 {
			delete(c.deps, src)
		}
	}
	delete(c.bound, field)
}

// Changed resets every loader bound to the input named field and returns
// their field names in order.
func (c *Controller) Changed(field string) []string {
	c.mu.Lock()
	fields := make([]string, 0, len(c.deps[field]))
	for f := range c.deps[field] {
		fields = append(fields, f)
	}
	c.mu.Unlock()
	slices.Sort(fields)

	reset := fields[:0]
	for _, f := range fields {
		if l, ok := c.reg.Get(f); ok {
			l.Reset()
			reset = append(reset, f)
		}
	}
	return reset
}
