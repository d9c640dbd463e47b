package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/kailas-cloud/selectd/internal/domain"
)

// Pinger is implemented by backends with a reachable dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sources maps source names to backends.
type Sources struct {
	backends map[string]Backend
}

// NewSources creates an empty source set.
func NewSources() *Sources {
	return &Sources{backends: make(map[string]Backend)}
}

// Add registers b under name. Names must be unique.
func (s *Sources) Add(name string, b Backend) error {
	if name == "" {
		return domain.NewConfigurationError("source", errors.New("name is required"))
	}
	if _, dup := s.backends[name]; dup {
		return domain.NewConfigurationError("source "+name, errors.New("duplicate source"))
	}
	s.backends[name] = b
	return nil
}

// Get returns the backend registered under name.
func (s *Sources) Get(name string) (Backend, bool) {
	b, ok := s.backends[name]
	return b, ok
}

// Names returns registered source names in sorted order.
func (s *Sources) Names() []string {
	out := make([]string, 0, len(s.backends))
	for name := range s.backends {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Pingers returns the backends that can be health-checked, keyed by name.
func (s *Sources) Pingers() map[string]Pinger {
	out := make(map[string]Pinger)
	for name, b := range s.backends {
		if p, ok := b.(Pinger); ok {
			out[name] = p
		}
	}
	return out
}

// Close closes every backend that holds resources.
func (s *Sources) Close() error {
	var errs []error
	for _, name := range s.Names() {
		if c, ok := s.backends[name].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
