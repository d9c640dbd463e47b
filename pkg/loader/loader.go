package loader

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/selectd/pkg/filterspec"
)

const defaultIDField = "id"

// Config describes one bound input.
type Config struct {
	// Name is the input the loader feeds, e.g. "items-2-product".
	Name string
	// URL is the search endpoint of the view, e.g. https://host/search/products.
	URL      string
	Filters  []filterspec.Spec
	Excludes []filterspec.Spec
	// IDField identifies records for deduplication. Defaults to "id".
	IDField string
	// MinimumInputLength is the shortest non-empty query that triggers a load.
	MinimumInputLength int
	// Preload allows loading with an empty query.
	Preload bool
	// MinDisplay is the number of fresh records a load tries to deliver
	// before it stops following next pages. Defaults to 1.
	MinDisplay int
}

// Loader drives incremental loading of one input's options. Calls may come
// from several goroutines; at most one fetch chain runs at a time and a
// Reset may be issued while it is in flight.
type Loader struct {
	cfg     Config
	base    *url.URL
	fetcher Fetcher
	values  filterspec.Values
	obs     *observer

	chain sync.Mutex

	mu           sync.Mutex
	state        State
	query        string
	cursors      map[string]string
	options      []Item
	shown        map[string]struct{}
	selected     map[string]struct{}
	resetPending bool
}

// New creates a loader for cfg.
func New(cfg Config, opts ...Option) (*Loader, error) {
	if cfg.Name == "" {
		return nil, errors.New("loader: name is required")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("loader: %s: invalid url %q", cfg.Name, cfg.URL)
	}
	if cfg.IDField == "" {
		cfg.IDField = defaultIDField
	}
	if cfg.MinDisplay <= 0 {
		cfg.MinDisplay = 1
	}

	o := &loaderOptions{}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.fetcher == nil {
		o.fetcher = NewHTTPFetcher("")
	}
	obs, err := newObserver(o.logger, o.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Loader{
		cfg:      cfg,
		base:     base,
		fetcher:  o.fetcher,
		values:   scopedValues{form: o.values, field: cfg.Name},
		obs:      obs,
		cursors:  make(map[string]string),
		shown:    make(map[string]struct{}),
		selected: make(map[string]struct{}),
	}, nil
}

// Name returns the input name.
func (l *Loader) Name() string { return l.cfg.Name }

// Dependencies returns the inputs named by field-derived filters and
// excludes, unresolved, in declaration order.
func (l *Loader) Dependencies() []string {
	return filterspec.Sources(l.cfg.Filters, l.cfg.Excludes)
}

// Load starts a new search for query from page 1. A query shorter than
// MinimumInputLength, or an empty one without Preload, is skipped. Clearing
// a non-empty query resets the loader.
func (l *Loader) Load(ctx context.Context, query string) (res Result, err error) {
	start := time.Now()
	defer func() { l.obs.observe("load", l.cfg.Name, start, err) }()

	l.chain.Lock()
	defer l.chain.Unlock()

	l.mu.Lock()
	if l.query != "" && query == "" {
		l.resetLocked()
	}
	l.mu.Unlock()

	if !l.qualifies(query) {
		return Result{Skipped: true}, nil
	}
	return l.first(ctx, query)
}

// LoadMore continues the current query from its stored cursor. After a
// reset, or before any successful load, it starts again from page 1.
func (l *Loader) LoadMore(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() { l.obs.observe("load_more", l.cfg.Name, start, err) }()

	l.chain.Lock()
	defer l.chain.Unlock()

	l.mu.Lock()
	query := l.query
	cursor, hasCursor := l.cursors[query]
	switch {
	case l.resetPending || l.state == Idle:
		l.mu.Unlock()
		if !l.qualifies(query) {
			return Result{Skipped: true}, nil
		}
		return l.first(ctx, query)
	case l.state == Exhausted || !hasCursor:
		l.state = Exhausted
		l.mu.Unlock()
		return Result{}, nil
	}
	l.state = Loading
	skip := l.skipSetLocked(true)
	l.mu.Unlock()

	ch, err := l.run(ctx, cursor, skip)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Idle
		return Result{}, err
	}
	l.options = append(l.options, ch.items...)
	l.markShownLocked(ch.items)
	return l.finishLocked(query, ch), nil
}

// first runs a chain from the original URL. The caller holds l.chain.
func (l *Loader) first(ctx context.Context, query string) (Result, error) {
	l.mu.Lock()
	l.query = query
	l.resetPending = false
	l.state = Loading
	delete(l.cursors, query)
	startURL := l.firstURL(query)
	skip := l.skipSetLocked(false)
	l.mu.Unlock()

	ch, err := l.run(ctx, startURL, skip)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Idle
		return Result{}, err
	}
	// A reset issued during the fetch leaves resetPending set; the response
	// still becomes the current options.
	l.query = query
	l.options = ch.items
	l.shown = make(map[string]struct{}, len(ch.items))
	l.markShownLocked(ch.items)
	return l.finishLocked(query, ch), nil
}

type chain struct {
	items   []Item
	last    Page
	lastURL string
	fetches int
}

// run fetches from next until MinDisplay fresh records are collected or the
// pages reported by the first response are used up.
func (l *Loader) run(ctx context.Context, next string, skip map[string]struct{}) (chain, error) {
	var (
		ch      chain
		dropped int
		limit   = 1
	)
	for ch.fetches < limit {
		p, err := l.fetcher.Fetch(ctx, next)
		if err != nil {
			l.obs.skip(dropped)
			return chain{}, err
		}
		ch.fetches++
		if ch.fetches == 1 {
			limit = max(p.TotalPages-p.Page+1, 1)
		}
		ch.last, ch.lastURL = p, next
		if p.Error != "" {
			break
		}

		for _, it := range p.Results {
			if id, ok := idOf(it, l.cfg.IDField); ok {
				if _, dup := skip[id]; dup {
					dropped++
					continue
				}
				skip[id] = struct{}{}
			}
			ch.items = append(ch.items, it)
		}

		if len(ch.items) >= l.cfg.MinDisplay || !p.HasMore || p.NextPage == nil {
			break
		}
		if next, err = withPage(next, *p.NextPage); err != nil {
			l.obs.skip(dropped)
			return chain{}, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	l.obs.skip(dropped)
	return ch, nil
}

func (l *Loader) finishLocked(query string, ch chain) Result {
	res := Result{
		Items:      ch.items,
		Page:       ch.last.Page,
		TotalPages: ch.last.TotalPages,
		HasMore:    ch.last.Error == "" && ch.last.HasMore && ch.last.NextPage != nil,
		Fetches:    ch.fetches,
		Err:        ch.last.Error,
	}
	if res.HasMore {
		if cursor, err := withPage(ch.lastURL, *ch.last.NextPage); err == nil {
			l.cursors[query] = cursor
			l.state = Loaded
			return res
		}
		res.HasMore = false
	}
	delete(l.cursors, query)
	l.state = Exhausted
	return res
}

func (l *Loader) qualifies(query string) bool {
	if query == "" {
		return l.cfg.Preload
	}
	return utf8.RuneCountInString(query) >= l.cfg.MinimumInputLength
}

func (l *Loader) firstURL(query string) string {
	u := *l.base
	q := u.Query()
	filterspec.Encode(q, query,
		filterspec.Resolve(l.cfg.Filters, l.values),
		filterspec.Resolve(l.cfg.Excludes, l.values),
		1,
	)
	u.RawQuery = q.Encode()
	return u.String()
}

func withPage(raw string, page int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("cursor %q: %w", raw, err)
	}
	q := u.Query()
	q.Set("p", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (l *Loader) skipSetLocked(withShown bool) map[string]struct{} {
	skip := maps.Clone(l.selected)
	if withShown {
		maps.Copy(skip, l.shown)
	}
	return skip
}

func (l *Loader) markShownLocked(items []Item) {
	for _, it := range items {
		if id, ok := idOf(it, l.cfg.IDField); ok {
			l.shown[id] = struct{}{}
		}
	}
}

// Reset clears cursors, options and the current query. The next load starts
// from page 1 with the original URL. Selected ids are kept.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *Loader) resetLocked() {
	clear(l.cursors)
	clear(l.shown)
	l.options = nil
	l.query = ""
	l.state = Idle
	l.resetPending = true
}

// Select marks ids as selected; they are skipped by later loads.
func (l *Loader) Select(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.selected[id] = struct{}{}
	}
}

// Deselect unmarks ids.
func (l *Loader) Deselect(ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.selected, id)
	}
}

// SetSelected replaces the selection.
func (l *Loader) SetSelected(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.selected)
	for _, id := range ids {
		l.selected[id] = struct{}{}
	}
}

// Selected returns the selected ids in order.
func (l *Loader) Selected() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Sorted(maps.Keys(l.selected))
}

// Options returns the records delivered since the last first-page load.
func (l *Loader) Options() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.options)
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot copies the loader state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		State:        l.state,
		Query:        l.query,
		Cursors:      maps.Clone(l.cursors),
		Options:      len(l.options),
		ResetPending: l.resetPending,
	}
}
