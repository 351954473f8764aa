package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
	"github.com/kailas-cloud/indexsync/internal/engine"
	"github.com/kailas-cloud/indexsync/internal/metrics"
	"github.com/kailas-cloud/indexsync/internal/routing"
	"github.com/kailas-cloud/indexsync/internal/transport/identity"
	healthuc "github.com/kailas-cloud/indexsync/internal/usecase/health"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockSearcher struct {
	res   *engine.SearchResult
	err   error
	calls int
	last  engine.Target
	body  []byte
}

func (m *mockSearcher) Search(_ context.Context, t engine.Target, body []byte) (*engine.SearchResult, error) {
	m.calls++
	m.last = t
	m.body = body
	if m.err != nil {
		return nil, m.err
	}
	if m.res == nil {
		return &engine.SearchResult{}, nil
	}
	return m.res, nil
}

type mockPinger struct {
	down map[tenant.Endpoint]bool
}

func (m *mockPinger) Ping(_ context.Context, ep tenant.Endpoint) error {
	if m.down[ep] {
		return errors.New("connection refused")
	}
	return nil
}

type staticValidator struct {
	tokens map[string]string
}

func (v staticValidator) Validate(_ context.Context, auth string) (identity.Principal, error) {
	tenantID, ok := v.tokens[auth]
	if !ok {
		return identity.Principal{}, errors.New("unauthenticated: bad token")
	}
	return identity.Principal{TenantID: tenantID}, nil
}

// --- Helpers ---

type fixture struct {
	searcher *mockSearcher
	pinger   *mockPinger
	handler  http.Handler
}

func newFixture(t *testing.T, v identity.Validator) *fixture {
	t.Helper()
	router, err := routing.New(routing.Config{
		BaseURL: "http://search.internal:9200",
		Tenants: []routing.Tenant{{ID: "UTEC", Port: 9201}, {ID: "MIT", Port: 9202}},
		Stages:  []tenant.Stage{"dev", "prod"},
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{searcher: &mockSearcher{}, pinger: &mockPinger{down: map[tenant.Endpoint]bool{}}}
	search := searchuc.New(router, f.searcher, "prod", zap.NewNop())
	health := healthuc.New(f.pinger, router.Endpoints(), nil)
	srv := NewServer(search, health, zap.NewNop())

	r := chi.NewRouter()
	r.Use(AuthMiddleware(v))
	srv.Register(r)
	f.handler = r
	return f
}

func (f *fixture) get(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

var utecAuth = map[string]string{"Authorization": "Bearer utec"}

func tokens() staticValidator {
	return staticValidator{tokens: map[string]string{
		"Bearer utec":  "UTEC",
		"Bearer ghost": "GHOST",
	}}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

// --- Tests ---

func TestSearch_OK(t *testing.T) {
	f := newFixture(t, tokens())
	f.searcher.res = &engine.SearchResult{
		Total:      1,
		TookMillis: 4,
		Hits: []engine.SearchHit{{
			ID:        "c-1",
			Score:     3.5,
			Source:    json.RawMessage(`{"record_id":"c-1","name":"Machine Learning","instructor":"Ada","category":"ai","status":"active","stage":"prod"}`),
			Highlight: map[string][]string{"name": {"<mark>Machine</mark> Learning"}},
		}},
	}

	rr := f.get("/search?q=machine&strategy=autocomplete&from=0&limit=50", utecAuth)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}

	var resp SearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Hits) != 1 || resp.Hits[0].RecordID != "c-1" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Limit != 8 || !resp.IsAutocomplete || resp.Strategy != "autocomplete" {
		t.Errorf("autocomplete metadata = %+v", resp)
	}
	if resp.Tenant != "UTEC" || resp.Stage != "prod" || resp.Index != "records_utec_prod" || resp.TookMillis != 4 {
		t.Errorf("routing metadata = %+v", resp)
	}
	if resp.QueryLength != 7 || !resp.SuggestionReady {
		t.Errorf("query metadata = %+v", resp)
	}
	if resp.Hits[0].Snippet != "Machine Learning - Ada (ai)" {
		t.Errorf("snippet = %q", resp.Hits[0].Snippet)
	}
	if f.searcher.last.Endpoint != "http://search.internal:9201" {
		t.Errorf("endpoint = %s", f.searcher.last.Endpoint)
	}
}

func TestSearch_TipoAlias(t *testing.T) {
	f := newFixture(t, tokens())

	rr := f.get("/search?q=ml&tipo=fuzzy", utecAuth)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp SearchResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Strategy != "fuzzy" || resp.Limit != 10 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSearch_InvalidParams_NoEngineCall(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing q", "/search"},
		{"blank q", "/search?q=%20%20"},
		{"unknown strategy", "/search?q=go&strategy=semantic"},
		{"negative limit", "/search?q=go&limit=-1"},
		{"non numeric from", "/search?q=go&from=abc"},
		{"window exceeded", "/search?q=go&from=9995&limit=10"},
		{"query too long", "/search?q=" + strings.Repeat("a", 513)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tokens())
			rr := f.get(tt.path, utecAuth)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if f.searcher.calls != 0 {
				t.Errorf("engine calls = %d, want 0", f.searcher.calls)
			}
		})
	}
}

func TestSearch_TenantNotConfigured(t *testing.T) {
	f := newFixture(t, tokens())

	rr := f.get("/search?q=go", map[string]string{"Authorization": "Bearer ghost"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	e := decodeError(t, rr)
	if e.Code != codeTenantNotConfigured || e.Stage != "prod" {
		t.Errorf("error = %+v", e)
	}
	if f.searcher.calls != 0 {
		t.Error("engine must not be contacted for an unknown tenant")
	}
}

func TestSearch_EngineDown_503(t *testing.T) {
	f := newFixture(t, tokens())
	f.searcher.err = errors.New("dial tcp: connection refused")

	rr := f.get("/search?q=go", utecAuth)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	e := decodeError(t, rr)
	if e.Code != codeSearchUnavailable || strings.Contains(e.Message, "dial") {
		t.Errorf("error should not leak internals: %+v", e)
	}
}

func TestSearch_IndexMissing(t *testing.T) {
	f := newFixture(t, tokens())
	f.searcher.res = &engine.SearchResult{IndexMissing: true}

	rr := f.get("/search?q=go", utecAuth)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp SearchResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Total != 0 || resp.Hits == nil || len(resp.Hits) != 0 || resp.Message == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSearch_Unauthenticated(t *testing.T) {
	f := newFixture(t, tokens())

	for _, h := range []map[string]string{nil, {"Authorization": "Bearer nope"}} {
		rr := f.get("/search?q=go", h)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("headers %v: status = %d, want 401", h, rr.Code)
		}
	}
	if f.searcher.calls != 0 {
		t.Error("engine must not be contacted without credentials")
	}
}

func TestSearch_AuthDisabled_TenantHeader(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.get("/search?q=go", map[string]string{TenantHeader: "MIT"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if f.searcher.last.Index != "records_mit_prod" {
		t.Errorf("index = %s", f.searcher.last.Index)
	}

	if rr := f.get("/search?q=go", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no tenant: status = %d, want 401", rr.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, tokens())

	rr := f.get("/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Status != "ok" || resp.Checks["engine:http://search.internal:9201"] != "ok" {
		t.Errorf("resp = %+v", resp)
	}

	f.pinger.down["http://search.internal:9201"] = true
	rr = f.get("/health", nil)
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if rr.Code != http.StatusOK || resp.Status != "degraded" {
		t.Errorf("one engine down: %d %+v", rr.Code, resp)
	}

	f.pinger.down["http://search.internal:9202"] = true
	if rr := f.get("/health", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("all engines down: status = %d, want 503", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, tokens())

	rr := f.get("/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "indexsync_") {
		t.Error("metrics output should contain indexsync metrics")
	}
}

func TestSafeDomainMessage(t *testing.T) {
	if got := safeDomainMessage(errors.New("boom: secret dsn")); got != "internal error" {
		t.Errorf("got %q", got)
	}
}
