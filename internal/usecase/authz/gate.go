// Package authz guards the search pipeline with per-view authorization.
package authz

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/request"
	"github.com/kailas-cloud/selectd/internal/domain/search/result"
	"github.com/kailas-cloud/selectd/internal/domain/view"
	"github.com/kailas-cloud/selectd/internal/metrics"
	"github.com/kailas-cloud/selectd/internal/repository/permcache"
)

// Gate checks permissions before the pipeline runs. A denied request never
// reaches the pipeline.
type Gate struct {
	search  Searcher
	checker Checker
	logger  *zap.Logger
}

// NewGate creates a Gate.
func NewGate(search Searcher, checker Checker, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{search: search, checker: checker, logger: logger}
}

// Search authorizes rc for the named view and runs the pipeline. Errors are
// domain.ErrNotFound for unknown views and *domain.AuthorizationDeniedError
// for rejections; pipeline failures come back inside the page.
func (g *Gate) Search(ctx context.Context, rc domain.RequestContext, viewName string, req *request.Request) (result.Page, error) {
	v, err := g.search.View(viewName)
	if err != nil {
		return result.Page{}, err
	}
	if err := g.authorize(ctx, rc, v); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(v.Name(), "denied").Inc()
		return result.Page{}, err
	}
	return g.search.Search(ctx, v, req), nil
}

func (g *Gate) authorize(ctx context.Context, rc domain.RequestContext, v view.View) error {
	if v.SkipAuthorization() {
		return nil
	}
	if rc.Principal.Anonymous {
		if v.AllowAnonymous() {
			return nil
		}
		return domain.NewAuthorizationDenied(domain.Unauthenticated, v.Name())
	}

	allowed, err := g.checker.Check(ctx, permcache.Query{
		Principal: rc.Principal,
		View:      v.Name(),
		Action:    v.Action(),
		Bypass:    v.AllowAnonymous(),
	})
	if err != nil {
		g.logger.Error("Permission check failed",
			zap.String("view", v.Name()),
			zap.String("request_id", rc.RequestID),
			zap.Error(err),
		)
		return domain.NewAuthorizationDenied(domain.Forbidden, v.Name())
	}
	if !allowed {
		return domain.NewAuthorizationDenied(domain.Forbidden, v.Name())
	}
	return nil
}
