package search

import (
	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain/view"
)

// Views resolves view definitions by name.
type Views interface {
	Get(name string) (view.View, bool)
}

// Sources resolves collection backends by source name.
type Sources interface {
	Get(name string) (collection.Backend, bool)
}
