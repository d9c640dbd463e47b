package loader

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// Option configures a Loader.
type Option interface {
	apply(*loaderOptions)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*loaderOptions)

func (f optionFunc) apply(o *loaderOptions) { f(o) }

type loaderOptions struct {
	fetcher    Fetcher
	values     filterspec.Values
	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithFetcher sets how pages are retrieved. Defaults to an unauthenticated
// HTTPFetcher.
func WithFetcher(f Fetcher) Option {
	return optionFunc(func(o *loaderOptions) {
		o.fetcher = f
	})
}

// WithValues sets the form the loader reads field-derived filter values from.
func WithValues(v filterspec.Values) Option {
	return optionFunc(func(o *loaderOptions) {
		o.values = v
	})
}

// WithLogger enables structured logging for loader operations.
// Pass nil to disable (default).
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *loaderOptions) {
		o.logger = l
	})
}

// WithPrometheus registers loader metrics (operation counts, durations and
// skipped records) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(o *loaderOptions) {
		o.metricsReg = reg
	})
}
