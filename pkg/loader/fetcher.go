package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const maxPageBody = 8 << 20

// Fetcher retrieves one result page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// HTTPFetcher fetches pages over HTTP with retries on 5xx and network errors.
type HTTPFetcher struct {
	client *retryablehttp.Client
	token  string
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithRetries sets the retry count and the minimum wait between attempts.
func WithRetries(n int, wait time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.RetryMax = n
		f.client.RetryWaitMin = wait
		if f.client.RetryWaitMax < wait {
			f.client.RetryWaitMax = wait
		}
	}
}

// WithFetchLogger logs retries through l. Retry logging is off by default.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.client.Logger = l
		}
	}
}

// WithHTTPClient uses a copy of c as the underlying http.Client; c itself
// is left untouched.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			cp := *c
			f.client.HTTPClient = &cp
		}
	}
}

// NewHTTPFetcher creates a fetcher sending token as a bearer credential when
// it is not empty.
func NewHTTPFetcher(token string, opts ...FetcherOption) *HTTPFetcher {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 2
	c.RetryWaitMin = 100 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second

	f := &HTTPFetcher{client: c, token: token}
	for _, o := range opts {
		o(f)
	}
	// A redirect means the server sent us to its login page.
	f.client.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Page{}, fmt.Errorf("%w: status %d", ErrAccessDenied, resp.StatusCode)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return Page{}, fmt.Errorf("%w: redirected to %s", ErrAccessDenied, resp.Header.Get("Location"))
	case resp.StatusCode != http.StatusOK:
		return Page{}, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}

	var p Page
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxPageBody))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return Page{}, fmt.Errorf("%w: decode page: %w", ErrTransport, err)
	}
	return p, nil
}
