package loader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
)

// pagedServer serves ids 1..total in pages of size, like GET /search/{view}.
type pagedServer struct {
	total int
	size  int

	mu   sync.Mutex
	urls []*url.URL
}

func (s *pagedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.urls = append(s.urls, r.URL)
	s.mu.Unlock()

	page := 1
	if p := r.URL.Query().Get("p"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	totalPages := (s.total + s.size - 1) / s.size

	var items []Item
	for id := (page-1)*s.size + 1; id <= min(page*s.size, s.total); id++ {
		items = append(items, Item{"id": id, "name": "record " + strconv.Itoa(id)})
	}
	resp := Page{Results: items, Page: page, TotalPages: totalPages, HasMore: page < totalPages}
	if resp.HasMore {
		next := page + 1
		resp.NextPage = &next
	}
	if resp.Results == nil {
		resp.Results = []Item{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *pagedServer) requests() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*url.URL(nil), s.urls...)
}

func (s *pagedServer) last() *url.URL {
	urls := s.requests()
	if len(urls) == 0 {
		return nil
	}
	return urls[len(urls)-1]
}

func newPagedLoader(t *testing.T, total, size int, cfg Config, opts ...Option) (*Loader, *pagedServer) {
	t.Helper()
	srv := &pagedServer{total: total, size: size}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	if cfg.Name == "" {
		cfg.Name = "product"
	}
	cfg.URL = ts.URL + "/search/products"
	opts = append([]Option{WithFetcher(NewHTTPFetcher("", WithRetries(0, 0)))}, opts...)
	l, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, srv
}

// fetcherFunc adapts a function to Fetcher.
type fetcherFunc func(ctx context.Context, url string) (Page, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (Page, error) { return f(ctx, url) }

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		id, _ := idOf(it, defaultIDField)
		out = append(out, id)
	}
	return out
}

func idRange(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}
