package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/request"
	"github.com/kailas-cloud/selectd/internal/domain/search/result"
	"github.com/kailas-cloud/selectd/internal/repository/permcache"
	healthuc "github.com/kailas-cloud/selectd/internal/usecase/health"
)

// --- Mocks ---

type mockGate struct {
	page  result.Page
	err   error
	view  string
	rc    domain.RequestContext
	req   *request.Request
	calls int
}

func (m *mockGate) Search(_ context.Context, rc domain.RequestContext, view string, req *request.Request) (result.Page, error) {
	m.calls++
	m.view, m.rc, m.req = view, rc, req
	return m.page, m.err
}

type mockInvalidator struct {
	users []string
	all   int
	err   error
}

func (m *mockInvalidator) InvalidateUser(_ context.Context, user string) (permcache.Strategy, error) {
	m.users = append(m.users, user)
	return permcache.StrategyGeneration, m.err
}

func (m *mockInvalidator) InvalidateAll(context.Context) (permcache.Strategy, error) {
	m.all++
	return permcache.StrategyPattern, m.err
}

type superusers map[string]bool

func (s superusers) IsSuperuser(p domain.Principal) bool { return p.Superuser || s[p.ID] }

type mockHealth struct{ report healthuc.Report }

func (m mockHealth) Check(context.Context) healthuc.Report { return m.report }

type testEnv struct {
	gate    *mockGate
	inv     *mockInvalidator
	handler http.Handler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{gate: &mockGate{}, inv: &mockInvalidator{}}
	if opts.Invalidator == nil {
		opts.Invalidator = env.inv
	}
	if opts.Admins == nil {
		opts.Admins = superusers{"root": true}
	}
	s := NewServer(env.gate, mockHealth{healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{
		"cache": healthuc.CheckOK,
	}}}, opts, nil)
	env.handler = NewRouter(s, RouterConfig{Auth: testAuthConfig()}, nil)
	return env
}

func (e *testEnv) do(method, target, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rr.Body.String())
	}
	return v
}

// --- Search ---

func TestSearch_Page(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.gate.page = result.New([]result.Record{{"id": 1, "name": "Item 01"}}, 2, 3)

	q := url.Values{"q": {"item"}, "f": {"category__category_id=5"}, "p": {"2"}}
	rr := env.do("GET", "/search/products?"+q.Encode(), "k-alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}

	resp := decode[map[string]any](t, rr)
	if resp["page"] != float64(2) || resp["total_pages"] != float64(3) || resp["has_more"] != true || resp["next_page"] != float64(3) {
		t.Errorf("unexpected page fields: %v", resp)
	}
	if _, ok := resp["error"]; ok {
		t.Error("error must be omitted on success")
	}
	if items, ok := resp["results"].([]any); !ok || len(items) != 1 {
		t.Errorf("unexpected results: %v", resp["results"])
	}

	if env.gate.view != "products" || env.gate.rc.Principal.ID != "alice" || env.gate.rc.RequestID == "" {
		t.Errorf("gate got view=%q rc=%+v", env.gate.view, env.gate.rc)
	}
	if env.gate.req.Text() != "item" || env.gate.req.Page() != 2 || len(env.gate.req.Filters()) != 1 {
		t.Errorf("unexpected request %+v", env.gate.req)
	}
}

func TestSearch_LastPageAndFailedPage(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.gate.page = result.New(nil, 1, 0)
	resp := decode[map[string]any](t, env.do("GET", "/search/products", "", ""))
	if resp["next_page"] != nil || resp["has_more"] != false {
		t.Errorf("unexpected last page: %v", resp)
	}
	if items, ok := resp["results"].([]any); !ok || len(items) != 0 {
		t.Errorf("results must be an empty list, got %v", resp["results"])
	}

	env.gate.page = result.Failed(1, domain.ErrQueryExecution.Error())
	rr := env.do("GET", "/search/products", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("failed pages keep the regular shape, got %d", rr.Code)
	}
	resp = decode[map[string]any](t, rr)
	if resp["error"] != domain.ErrQueryExecution.Error() {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestSearch_MalformedRequestReachesGate(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   error
	}{
		{"bad page", "/search/products?p=abc", domain.ErrInvalidRequest},
		{"bad token", "/search/products?f=" + url.QueryEscape("no-equals-sign"), domain.ErrInvalidFilter},
		{"bad exclude", "/search/products?e=novalue", domain.ErrInvalidFilter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.gate.page = result.Failed(1, tc.want.Error())

			rr := env.do("GET", tc.target, "", "")
			if rr.Code != http.StatusOK {
				t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
			}
			if env.gate.calls != 1 {
				t.Fatalf("gate calls = %d, want 1", env.gate.calls)
			}
			if !errors.Is(env.gate.req.Err(), tc.want) {
				t.Errorf("request error = %v, want %v", env.gate.req.Err(), tc.want)
			}
			resp := decode[map[string]any](t, rr)
			if resp["error"] != tc.want.Error() {
				t.Errorf("error = %v", resp["error"])
			}
			if items, ok := resp["results"].([]any); !ok || len(items) != 0 {
				t.Errorf("results must be an empty list, got %v", resp["results"])
			}
		})
	}
}

func TestSearch_MalformedRequestStillDenied(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.gate.err = domain.NewAuthorizationDenied(domain.Unauthenticated, "products")

	rr := env.do("GET", "/search/products?f=broken", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"unknown view", fmt.Errorf("view %q: %w", "nope", domain.ErrNotFound), http.StatusNotFound, codeViewNotFound},
		{"unauthenticated", domain.NewAuthorizationDenied(domain.Unauthenticated, "products"), http.StatusUnauthorized, codeUnauthenticated},
		{"forbidden", domain.NewAuthorizationDenied(domain.Forbidden, "products"), http.StatusForbidden, codeForbidden},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.gate.err = tc.err
			rr := env.do("GET", "/search/products", "", "")
			if rr.Code != tc.code {
				t.Fatalf("got %d, want %d", rr.Code, tc.code)
			}
			if got := decode[ErrorResponse](t, rr); got.Code != tc.body {
				t.Errorf("code = %q, want %q", got.Code, tc.body)
			}
		})
	}
}

func TestSearch_LoginRedirect(t *testing.T) {
	env := newTestEnv(t, Options{LoginURL: "https://sso.example.com/login?app=shop"})
	env.gate.err = domain.NewAuthorizationDenied(domain.Unauthenticated, "products")

	rr := env.do("GET", "/search/products?q=abc", "", "")
	if rr.Code != http.StatusFound {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusFound)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Host != "sso.example.com" || loc.Query().Get("app") != "shop" || loc.Query().Get("next") != "/search/products?q=abc" {
		t.Errorf("unexpected redirect %s", loc)
	}

	env.gate.err = domain.NewAuthorizationDenied(domain.Forbidden, "products")
	if rr := env.do("GET", "/search/products", "k-alice", ""); rr.Code != http.StatusForbidden {
		t.Errorf("forbidden must not redirect, got %d", rr.Code)
	}
}

// --- Admin ---

func TestInvalidatePermissions(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do("POST", "/admin/permissions/invalidate", "k-root", `{"user":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[InvalidateResponse](t, rr); got.Scope != "user" || got.Mode != "generation" {
		t.Errorf("unexpected response %+v", got)
	}
	if len(env.inv.users) != 1 || env.inv.users[0] != "alice" {
		t.Errorf("invalidated %v", env.inv.users)
	}

	rr = env.do("POST", "/admin/permissions/invalidate", "k-root", `{"all":true}`)
	if got := decode[InvalidateResponse](t, rr); got.Scope != "all" || env.inv.all != 1 {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestInvalidatePermissions_Rejected(t *testing.T) {
	tests := []struct {
		name, auth, body string
		code             int
	}{
		{"anonymous", "", `{"all":true}`, http.StatusUnauthorized},
		{"not superuser", "k-alice", `{"all":true}`, http.StatusForbidden},
		{"empty body", "k-root", `{}`, http.StatusBadRequest},
		{"both", "k-root", `{"user":"a","all":true}`, http.StatusBadRequest},
		{"unknown field", "k-root", `{"users":["a"]}`, http.StatusBadRequest},
		{"not json", "k-root", `user=a`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			if rr := env.do("POST", "/admin/permissions/invalidate", tc.auth, tc.body); rr.Code != tc.code {
				t.Fatalf("got %d, want %d", rr.Code, tc.code)
			}
			if env.inv.all != 0 || len(env.inv.users) != 0 {
				t.Fatal("rejected requests must not invalidate")
			}
		})
	}
}

func TestInvalidatePermissions_StoreError(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.inv.err = errors.New("connection reset")
	if rr := env.do("POST", "/admin/permissions/invalidate", "k-root", `{"all":true}`); rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rr.Code)
	}
}

// --- Operational ---

func TestHealthAndRouting(t *testing.T) {
	env := newTestEnv(t, Options{})

	rr := env.do("GET", "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: got %d", rr.Code)
	}
	if got := decode[HealthResponse](t, rr); got.Status != "ok" || got.Checks["cache"] != "ok" {
		t.Errorf("unexpected health %+v", got)
	}

	if rr := env.do("GET", "/metrics", "", ""); rr.Code != http.StatusOK {
		t.Errorf("metrics: got %d", rr.Code)
	}
	if rr := env.do("GET", "/nope", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: got %d", rr.Code)
	}
	if rr := env.do("DELETE", "/search/products", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: got %d", rr.Code)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	s := NewServer(&mockGate{}, mockHealth{healthuc.Report{Status: healthuc.Unhealthy}}, Options{}, nil)
	rr := httptest.NewRecorder()
	s.HealthCheck(rr, httptest.NewRequest("GET", "/health", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestRouter_AdminDisabled(t *testing.T) {
	s := NewServer(&mockGate{}, mockHealth{}, Options{}, nil)
	h := NewRouter(s, RouterConfig{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/admin/permissions/invalidate", strings.NewReader(`{"all":true}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	s := NewServer(panicGate{}, mockHealth{}, Options{}, nil)
	h := NewRouter(s, RouterConfig{}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/search/products", http.NoBody))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr); got.Code != codeInternal {
		t.Errorf("code = %q", got.Code)
	}
}

type panicGate struct{}

func (panicGate) Search(context.Context, domain.RequestContext, string, *request.Request) (result.Page, error) {
	panic("boom")
}
