package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/indexsync/internal/transport/identity"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NilValidator_PassThrough(t *testing.T) {
	handler := AuthMiddleware(nil)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/search", http.NoBody))

	if rr.Code != http.StatusOK {
		t.Errorf("nil validator: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_MissingHeader_401(t *testing.T) {
	handler := AuthMiddleware(tokens())(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/search", http.NoBody))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing header: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if e := decodeError(t, rr); e.Code != codeUnauthenticated {
		t.Errorf("error code: got %s, want %s", e.Code, codeUnauthenticated)
	}
}

func TestAuthMiddleware_InvalidToken_401(t *testing.T) {
	handler := AuthMiddleware(tokens())(okHandler())

	req := httptest.NewRequest("GET", "/search", http.NoBody)
	req.Header.Set("Authorization", "Bearer wrong")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ValidToken_StoresPrincipal(t *testing.T) {
	var got identity.Principal
	handler := AuthMiddleware(tokens())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = identity.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/search", http.NoBody)
	req.Header.Set("Authorization", "Bearer utec")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: got %d, want %d", rr.Code, http.StatusOK)
	}
	if got.TenantID != "UTEC" {
		t.Errorf("principal = %+v", got)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler := AuthMiddleware(tokens())(okHandler())

	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", path, http.NoBody))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}
