package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/request"
	"github.com/kailas-cloud/selectd/internal/domain/search/result"
	"github.com/kailas-cloud/selectd/internal/domain/view"
	"github.com/kailas-cloud/selectd/internal/metrics"
)

var tracer = otel.Tracer("selectd/usecase/search")

// Service runs the search pipeline for configured views.
type Service struct {
	views   Views
	sources Sources
	hooks   Hooks
	logger  *zap.Logger
}

// New creates a search service.
func New(views Views, sources Sources, hooks Hooks, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{views: views, sources: sources, hooks: hooks, logger: logger}
}

// View resolves a view by name.
func (s *Service) View(name string) (view.View, error) {
	v, ok := s.views.Get(name)
	if !ok {
		return view.View{}, fmt.Errorf("view %q: %w", name, domain.ErrNotFound)
	}
	return v, nil
}

// Search executes the pipeline for v. It never fails: any step error is
// logged and reported as an empty page with its error flag set, so callers
// always receive the regular page shape.
func (s *Service) Search(ctx context.Context, v view.View, req *request.Request) result.Page {
	ctx, span := tracer.Start(ctx, "search.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("selectd.view", v.Name()),
		attribute.Int("selectd.page", req.Page()),
		attribute.Bool("selectd.text", req.Text() != ""),
	)

	start := time.Now()
	page, err := s.execute(ctx, v, req)
	metrics.SearchDuration.WithLabelValues(v.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		metrics.SearchRequestsTotal.WithLabelValues(v.Name(), "error").Inc()

		level := s.logger.Error
		if errors.Is(err, domain.ErrInvalidFilter) || errors.Is(err, domain.ErrInvalidRequest) {
			level = s.logger.Warn
		}
		level("Search pipeline failed",
			zap.String("view", v.Name()),
			zap.Int("page", req.Page()),
			zap.Error(err),
		)
		return result.Failed(req.Page(), failureMessage(err))
	}

	metrics.SearchRequestsTotal.WithLabelValues(v.Name(), "ok").Inc()
	metrics.SearchResultsReturned.WithLabelValues(v.Name()).Observe(float64(len(page.Items())))
	span.SetAttributes(attribute.Int("selectd.results", len(page.Items())))
	return page
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidFilter):
		return domain.ErrInvalidFilter.Error()
	case errors.Is(err, domain.ErrInvalidRequest):
		return domain.ErrInvalidRequest.Error()
	}
	return domain.ErrQueryExecution.Error()
}

func (s *Service) execute(ctx context.Context, v view.View, req *request.Request) (result.Page, error) {
	if err := req.Err(); err != nil {
		return result.Page{}, fmt.Errorf("decode request: %w", err)
	}
	backend, ok := s.sources.Get(v.Source())
	if !ok {
		return result.Page{}, fmt.Errorf("%w: source %q is not configured", domain.ErrQueryExecution, v.Source())
	}
	st := Stage{View: v, Request: req, Base: collection.New(backend)}

	c := st.Base
	steps := []struct {
		name string
		fn   StepFunc
		def  StepFunc
	}{
		{"base collection", s.hooks.BaseCollection, DefaultBaseCollection},
		{"filter", s.hooks.Filtered, DefaultFiltered},
		{"exclude", s.hooks.Excluded, DefaultExcluded},
		{"search", s.hooks.Searched, DefaultSearched},
		{"order", s.hooks.Ordered, DefaultOrdered},
	}
	for _, step := range steps {
		fn := step.fn
		if fn == nil {
			fn = step.def
		}
		var err error
		if c, err = fn(ctx, st, c); err != nil {
			return result.Page{}, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	paginate := s.hooks.Paginate
	if paginate == nil {
		paginate = DefaultPaginate
	}
	w, err := paginate(ctx, st, c)
	if err != nil {
		return result.Page{}, fmt.Errorf("paginate: %w", err)
	}

	items := make([]result.Record, 0, len(w.Records))
	for _, rec := range w.Records {
		out, err := shape(ctx, v, rec)
		if err != nil {
			return result.Page{}, fmt.Errorf("shape: %w", err)
		}
		if s.hooks.Shape != nil {
			if out, err = s.hooks.Shape(ctx, st, out); err != nil {
				return result.Page{}, fmt.Errorf("shape hook: %w", err)
			}
		}
		items = append(items, out)
	}
	return result.New(items, req.Page(), result.TotalPages(w.Count, v.PageSize())), nil
}
