package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// loaderMetrics holds prometheus metrics registered for loaders.
type loaderMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	skipped    prometheus.Counter
}

func newLoaderMetrics(reg prometheus.Registerer) (*loaderMetrics, error) {
	m := &loaderMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "selectd",
			Subsystem: "loader",
			Name:      "operations_total",
			Help:      "Total loader operations by type and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "selectd",
			Subsystem: "loader",
			Name:      "operation_duration_seconds",
			Help:      "Loader operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "selectd",
			Subsystem: "loader",
			Name:      "skipped_items_total",
			Help:      "Records dropped because they were already selected or shown.",
		}),
	}
	if err := registerOrReuse(reg, &m.operations); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.skipped); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("loader: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("loader: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for loader operations.
type observer struct {
	logger  *slog.Logger
	metrics *loaderMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *loaderMetrics
	if reg != nil {
		var err error
		m, err = newLoaderMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(op, field string, start time.Time, err error) {
	if o == nil {
		return
	}
	dur := time.Since(start)

	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.operations.WithLabelValues(op, status).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}

	if o.logger != nil {
		if err != nil {
			o.logger.Warn("operation failed",
				"op", op,
				"field", field,
				"duration", dur,
				"error", err,
			)
		} else {
			o.logger.Debug("operation completed",
				"op", op,
				"field", field,
				"duration", dur,
			)
		}
	}
}

func (o *observer) skip(n int) {
	if o == nil || o.metrics == nil || n == 0 {
		return
	}
	o.metrics.skipped.Add(float64(n))
}
