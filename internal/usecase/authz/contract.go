package authz

import (
	"context"

	"github.com/kailas-cloud/selectd/internal/domain/search/request"
	"github.com/kailas-cloud/selectd/internal/domain/search/result"
	"github.com/kailas-cloud/selectd/internal/domain/view"
	"github.com/kailas-cloud/selectd/internal/repository/permcache"
)

// Searcher resolves views and runs the search pipeline.
type Searcher interface {
	View(name string) (view.View, error)
	Search(ctx context.Context, v view.View, req *request.Request) result.Page
}

// Checker answers (cached) authorization questions.
type Checker interface {
	Check(ctx context.Context, q permcache.Query) (bool, error)
}
