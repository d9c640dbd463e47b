package request

import (
	"fmt"
	"net/url"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

// Request parameter limits.
const (
	// MaxQueryLength is the maximum allowed search text length.
	MaxQueryLength = 1024
	// MaxTokens caps the number of filter and exclude tokens each.
	MaxTokens = 32
	// MaxPage caps the page number a client may ask for.
	MaxPage = 100000
)

// Request is an immutable search query. A request decoded from the wire
// may carry a decoding failure in Err; its other fields are then defaults.
type Request struct {
	text     string
	filters  []filterspec.Predicate
	excludes []filterspec.Predicate
	page     int
	err      error
}

// New validates and normalizes search parameters. Page defaults to 1.
func New(text string, filters, excludes []filterspec.Predicate, page int) (Request, error) {
	if len(text) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	if len(filters) > MaxTokens {
		return Request{}, fmt.Errorf("%w: too many filters (max %d)", domain.ErrInvalidRequest, MaxTokens)
	}
	if len(excludes) > MaxTokens {
		return Request{}, fmt.Errorf("%w: too many excludes (max %d)", domain.ErrInvalidRequest, MaxTokens)
	}
	if page <= 0 {
		page = 1
	}
	if page > MaxPage {
		return Request{}, fmt.Errorf("%w: page out of range (max %d)", domain.ErrInvalidRequest, MaxPage)
	}
	return Request{
		text:     text,
		filters:  append([]filterspec.Predicate(nil), filters...),
		excludes: append([]filterspec.Predicate(nil), excludes...),
		page:     page,
	}, nil
}

// FromQuery decodes the q, f, e and p parameters. It does not fail: a
// malformed parameter is kept in Err so the request can be authorized first
// and the failure reported as a regular result page.
func FromQuery(q url.Values) Request {
	var (
		text     *string
		fTokens  []string
		eTokens  []string
		pageNum  *int
		bindings = []struct {
			name string
			dest any
		}{
			{"q", &text},
			{"f", &fTokens},
			{"e", &eTokens},
			{"p", &pageNum},
		}
	)
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return invalid(pageNum, fmt.Errorf("%w: parameter %s: %v", domain.ErrInvalidRequest, b.name, err))
		}
	}

	filters, err := filterspec.ParseTokens(fTokens)
	if err != nil {
		return invalid(pageNum, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err))
	}
	excludes, err := filterspec.ParseTokens(eTokens)
	if err != nil {
		return invalid(pageNum, fmt.Errorf("%w: %w", domain.ErrInvalidFilter, err))
	}

	var s string
	if text != nil {
		s = *text
	}
	page := 1
	if pageNum != nil {
		page = *pageNum
	}
	r, err := New(s, filters, excludes, page)
	if err != nil {
		return invalid(pageNum, err)
	}
	return r
}

// invalid keeps the requested page when it is usable, so the failed page
// echoes it back.
func invalid(pageNum *int, err error) Request {
	page := 1
	if pageNum != nil && *pageNum > 0 && *pageNum <= MaxPage {
		page = *pageNum
	}
	return Request{page: page, err: err}
}

// Err returns the decoding failure of a wire request, nil when valid.
func (r *Request) Err() error { return r.err }

// Text returns the search text.
func (r *Request) Text() string { return r.text }

// Filters returns the client filter predicates.
func (r *Request) Filters() []filterspec.Predicate { return r.filters }

// Excludes returns the client exclude predicates.
func (r *Request) Excludes() []filterspec.Predicate { return r.excludes }

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }
