package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/search/request"
	"github.com/kailas-cloud/indexsync/internal/domain/search/result"
	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
	"github.com/kailas-cloud/indexsync/internal/transport/identity"
	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// TenantHeader names the tenant when authentication is disabled.
const TenantHeader = "X-Tenant-ID"

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeInvalidQuery        = "invalid_query"
	codeUnauthenticated     = "unauthenticated"
	codeTenantNotConfigured = "tenant_not_configured"
	codeSearchUnavailable   = "search_unavailable"
	codeInternalError       = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
}

// SearchParams are the query parameters of GET /search.
type SearchParams struct {
	Q        *string
	Strategy *string
	From     *int
	Limit    *int
}

// SearchHit is one hit in SearchResponse.
type SearchHit struct {
	result.Fields
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
	Snippet    string              `json:"snippet,omitempty"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Total           int         `json:"total"`
	Hits            []SearchHit `json:"hits"`
	Offset          int         `json:"offset"`
	Limit           int         `json:"limit"`
	Strategy        string      `json:"strategy"`
	TookMillis      int         `json:"took_ms"`
	Tenant          string      `json:"tenant"`
	Stage           string      `json:"stage"`
	Index           string      `json:"index"`
	IsAutocomplete  bool        `json:"is_autocomplete"`
	QueryLength     int         `json:"query_length"`
	SuggestionReady bool        `json:"suggestion_ready"`
	Message         string      `json:"message,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server serves the search API.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		search: search,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrUnauthenticated, http.StatusUnauthorized, codeUnauthenticated),
		s.tenantNotConfiguredHandler,
		sentinelHandler(domain.ErrSearchUnavailable, http.StatusServiceUnavailable, codeSearchUnavailable),
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/search", s.Search)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Search handles GET /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request: "+err.Error())
		return
	}

	tenantID, ok := tenantOf(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "no tenant for caller")
		return
	}

	req, err := request.New(deref(params.Q), strategy.Strategy(strings.ToLower(deref(params.Strategy))),
		derefInt(params.From), derefInt(params.Limit), tenantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}

	page, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(page))
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

// bindSearchParams reads q, strategy (alias tipo), from and limit.
func bindSearchParams(r *http.Request) (SearchParams, error) {
	var p SearchParams
	q := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, false, "q", q, &p.Q); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "strategy", q, &p.Strategy); err != nil {
		return p, err
	}
	if p.Strategy == nil {
		if err := runtime.BindQueryParameter("form", true, false, "tipo", q, &p.Strategy); err != nil {
			return p, err
		}
	}
	if err := runtime.BindQueryParameter("form", true, false, "from", q, &p.From); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &p.Limit); err != nil {
		return p, err
	}
	return p, nil
}

// tenantOf returns the tenant of the authenticated principal, or the tenant header
// when authentication is disabled.
func tenantOf(r *http.Request) (string, bool) {
	if p, ok := identity.PrincipalFromContext(r.Context()); ok {
		return p.TenantID, p.TenantID != ""
	}
	id := strings.TrimSpace(r.Header.Get(TenantHeader))
	return id, id != ""
}

func pageToResponse(p result.Page) SearchResponse {
	resp := SearchResponse{
		Total:           p.Total,
		Hits:            make([]SearchHit, 0, len(p.Hits)),
		Offset:          p.Offset,
		Limit:           p.Limit,
		Strategy:        string(p.Strategy),
		TookMillis:      p.TookMillis,
		Tenant:          p.TenantID,
		Stage:           p.Stage,
		Index:           p.Index,
		IsAutocomplete:  p.IsAutocomplete(),
		QueryLength:     p.QueryLength,
		SuggestionReady: p.SuggestionReady,
	}
	for _, h := range p.Hits {
		resp.Hits = append(resp.Hits, SearchHit{
			Fields:     h.Fields(),
			Score:      h.Score(),
			Highlights: h.Highlights(),
			Snippet:    h.Snippet(),
		})
	}
	if p.IndexMissing {
		resp.Message = "no records indexed for this tenant in stage " + p.Stage
	}
	return resp
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
		domain.ErrInvalidQuery,
		domain.ErrUnauthenticated,
		domain.ErrTenantNotAuthorized,
		domain.ErrSearchUnavailable,
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
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// tenantNotConfiguredHandler answers 403 with the stage the tenant was looked up in.
func (s *Server) tenantNotConfiguredHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrTenantNotAuthorized) {
		return false
	}
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Code:    codeTenantNotConfigured,
		Message: msg,
		Stage:   string(s.search.Stage()),
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
