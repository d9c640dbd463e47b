package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/search/request"
	"github.com/kailas-cloud/selectd/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/selectd/internal/logger"
	"github.com/kailas-cloud/selectd/internal/repository/permcache"
	healthuc "github.com/kailas-cloud/selectd/internal/usecase/health"
)

// Error codes of ErrorResponse.
const (
	codeBadRequest      = "bad_request"
	codeViewNotFound    = "view_not_found"
	codeUnauthenticated = "unauthenticated"
	codeForbidden       = "forbidden"
	codeInternal        = "internal_error"
)

const maxAdminBody = 4 << 10

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchResponse is the wire format of one result page.
type SearchResponse struct {
	Results    []result.Record `json:"results"`
	Page       int             `json:"page"`
	HasMore    bool            `json:"has_more"`
	NextPage   *int            `json:"next_page"`
	TotalPages int             `json:"total_pages"`
	Error      string          `json:"error,omitempty"`
}

// InvalidateRequest is the body of POST /admin/permissions/invalidate.
type InvalidateRequest struct {
	User string `json:"user"`
	All  bool   `json:"all"`
}

// InvalidateResponse reports what an invalidation did.
type InvalidateResponse struct {
	Scope string `json:"scope"`
	Mode  string `json:"mode"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SearchGate authorizes and runs searches.
type SearchGate interface {
	Search(ctx context.Context, rc domain.RequestContext, view string, req *request.Request) (result.Page, error)
}

// Invalidator drops cached permission decisions.
type Invalidator interface {
	InvalidateUser(ctx context.Context, user string) (permcache.Strategy, error)
	InvalidateAll(ctx context.Context) (permcache.Strategy, error)
}

// Admins tells who may call admin endpoints.
type Admins interface {
	IsSuperuser(p domain.Principal) bool
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, r *http.Request, err error) bool

// Server serves the search, admin and operational endpoints.
type Server struct {
	gate          SearchGate
	invalidator   Invalidator
	admins        Admins
	health        HealthChecker
	loginURL      string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// Options holds optional collaborators of a Server.
type Options struct {
	// Invalidator and Admins enable the admin endpoint when both are set.
	Invalidator Invalidator
	Admins      Admins
	// LoginURL receives unauthenticated browsers with a "next" parameter.
	LoginURL string
}

// NewServer creates an HTTP API server.
func NewServer(gate SearchGate, health HealthChecker, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		gate:        gate,
		invalidator: opts.Invalidator,
		admins:      opts.Admins,
		health:      health,
		loginURL:    opts.LoginURL,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		s.denialHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeViewNotFound),
	}
	return s
}

// Search handles GET /search/{view}.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req := request.FromQuery(r.URL.Query())
	rc := domain.RequestFromContext(r.Context())
	page, err := s.gate.Search(r.Context(), rc, chi.URLParam(r, "view"), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse(&page))
}

func searchResponse(p *result.Page) SearchResponse {
	items := p.Items()
	if items == nil {
		items = []result.Record{}
	}
	return SearchResponse{
		Results:    items,
		Page:       p.Page(),
		HasMore:    p.HasMore(),
		NextPage:   p.NextPage(),
		TotalPages: p.TotalPages(),
		Error:      p.Err(),
	}
}

// InvalidatePermissions handles POST /admin/permissions/invalidate.
func (s *Server) InvalidatePermissions(w http.ResponseWriter, r *http.Request) {
	rc := domain.RequestFromContext(r.Context())
	if rc.Principal.Anonymous {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
		return
	}
	if !s.admins.IsSuperuser(rc.Principal) {
		writeError(w, http.StatusForbidden, codeForbidden, "superuser required")
		return
	}

	var body InvalidateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if body.All == (body.User != "") {
		writeError(w, http.StatusBadRequest, codeBadRequest, `exactly one of "user" or "all" is required`)
		return
	}

	var (
		mode  permcache.Strategy
		err   error
		scope = "user"
	)
	if body.All {
		scope = "all"
		mode, err = s.invalidator.InvalidateAll(r.Context())
	} else {
		mode, err = s.invalidator.InvalidateUser(r.Context(), body.User)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	logpkg.FromContext(r.Context()).Info("Permissions invalidated",
		zap.String("scope", scope),
		zap.String("user", body.User),
		zap.String("by", rc.Principal.ID),
	)
	writeJSON(w, http.StatusOK, InvalidateResponse{Scope: scope, Mode: string(mode)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrAuthorizationDenied,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, _ *http.Request, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

// denialHandler maps gate rejections: unauthenticated requests go to the
// login page when one is configured, otherwise 401; forbidden is 403.
func (s *Server) denialHandler(w http.ResponseWriter, r *http.Request, err error) bool {
	var denied *domain.AuthorizationDeniedError
	if !errors.As(err, &denied) {
		return false
	}
	if denied.Reason == domain.Unauthenticated {
		if s.loginURL != "" {
			http.Redirect(w, r, loginRedirect(s.loginURL, r.URL.RequestURI()), http.StatusFound)
			return true
		}
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
		return true
	}
	writeError(w, http.StatusForbidden, codeForbidden, "permission denied")
	return true
}

func loginRedirect(loginURL, next string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return loginURL
	}
	q := u.Query()
	q.Set("next", next)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logpkg.FromContext(r.Context()).Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, r, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
