package view

import (
	"errors"
	"sort"

	"github.com/kailas-cloud/selectd/internal/domain"
)

// Catalog holds the configured views by name.
type Catalog struct {
	views map[string]View
}

// NewCatalog indexes views by name; duplicate names are a configuration error.
func NewCatalog(views ...View) (*Catalog, error) {
	c := &Catalog{views: make(map[string]View, len(views))}
	for _, v := range views {
		if _, dup := c.views[v.Name()]; dup {
			return nil, domain.NewConfigurationError("view "+v.Name(), errors.New("duplicate view name"))
		}
		c.views[v.Name()] = v
	}
	return c, nil
}

// Get returns the view registered under name.
func (c *Catalog) Get(name string) (View, bool) {
	v, ok := c.views[name]
	return v, ok
}

// Names returns the view names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.views))
	for name := range c.views {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
