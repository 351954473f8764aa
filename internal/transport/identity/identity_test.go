package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

func validatorServer(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &gotAuth
}

func TestRemote_PayloadShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"top level payload", `{"payload":{"tenant_id":"UTEC","email":"a@utec.edu"}}`},
		{"string body", `{"statusCode":200,"body":"{\"payload\":{\"tenant_id\":\"UTEC\",\"email\":\"a@utec.edu\"}}"}`},
		{"object body", `{"body":{"payload":{"tenantId":"UTEC","email":"a@utec.edu"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, gotAuth := validatorServer(t, http.StatusOK, tt.body)
			v := NewRemote(srv.URL, srv.Client())

			p, err := v.Validate(context.Background(), "Bearer tok")
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if p.TenantID != "UTEC" || p.Subject != "a@utec.edu" {
				t.Errorf("principal = %+v", p)
			}
			if *gotAuth != "Bearer tok" {
				t.Errorf("forwarded header = %q", *gotAuth)
			}
		})
	}
}

func TestRemote_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"forbidden", http.StatusForbidden, `{"payload":{"tenant_id":"UTEC"}}`},
		{"not json", http.StatusOK, `<html>`},
		{"no payload", http.StatusOK, `{"body":"{\"message\":\"ok\"}"}`},
		{"no tenant", http.StatusOK, `{"payload":{"email":"a@b"}}`},
		{"empty", http.StatusOK, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := validatorServer(t, tt.status, tt.body)
			_, err := NewRemote(srv.URL, srv.Client()).Validate(context.Background(), "Bearer tok")
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestRemote_MissingHeader(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	_, err := NewRemote(srv.URL, nil).Validate(context.Background(), "  ")
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("err = %v", err)
	}
	if called {
		t.Error("validator should not be called without credentials")
	}
}

func TestRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemote(url, nil).Validate(context.Background(), "Bearer tok")
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWT_Validate(t *testing.T) {
	v, err := NewJWT("s3cret", "auth.example", "")
	if err != nil {
		t.Fatal(err)
	}
	exp := time.Now().Add(time.Hour).Unix()

	tok := sign(t, "s3cret", jwt.MapClaims{"tenant_id": "MIT", "sub": "u-1", "iss": "auth.example", "exp": exp})
	p, err := v.Validate(context.Background(), "Bearer "+tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.TenantID != "MIT" || p.Subject != "u-1" {
		t.Errorf("principal = %+v", p)
	}

	// bare tokens are accepted too
	if _, err := v.Validate(context.Background(), tok); err != nil {
		t.Errorf("bare token: %v", err)
	}
}

func TestJWT_Rejects(t *testing.T) {
	v, _ := NewJWT("s3cret", "auth.example", "")
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, "other", jwt.MapClaims{"tenant_id": "MIT", "iss": "auth.example", "exp": exp})},
		{"expired", sign(t, "s3cret", jwt.MapClaims{"tenant_id": "MIT", "iss": "auth.example", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no exp", sign(t, "s3cret", jwt.MapClaims{"tenant_id": "MIT", "iss": "auth.example"})},
		{"wrong issuer", sign(t, "s3cret", jwt.MapClaims{"tenant_id": "MIT", "iss": "evil", "exp": exp})},
		{"no tenant", sign(t, "s3cret", jwt.MapClaims{"iss": "auth.example", "exp": exp})},
		{"garbage", "not.a.token"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(context.Background(), "Bearer "+tt.token); !errors.Is(err, domain.ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestNewJWT_RequiresSecret(t *testing.T) {
	if _, err := NewJWT("", "", ""); err == nil {
		t.Error("expected error")
	}
}

// --- Mocks ---

type countingValidator struct {
	calls int
	err   error
}

func (c *countingValidator) Validate(context.Context, string) (Principal, error) {
	c.calls++
	if c.err != nil {
		return Principal{}, c.err
	}
	return Principal{TenantID: "UTEC"}, nil
}

func TestCached(t *testing.T) {
	next := &countingValidator{}
	v := NewCached(next, 16, time.Minute)

	for range 3 {
		p, err := v.Validate(context.Background(), "Bearer a")
		if err != nil || p.TenantID != "UTEC" {
			t.Fatalf("Validate = %+v, %v", p, err)
		}
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}

	next.err = domain.ErrUnauthenticated
	for range 2 {
		if _, err := v.Validate(context.Background(), "Bearer b"); err == nil {
			t.Fatal("expected error")
		}
	}
	if next.calls != 3 {
		t.Errorf("failures must not be cached: calls = %d", next.calls)
	}
}

func TestPrincipalContext(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("empty context should have no principal")
	}
	ctx := ContextWithPrincipal(context.Background(), Principal{TenantID: "UTEC"})
	if p, ok := PrincipalFromContext(ctx); !ok || p.TenantID != "UTEC" {
		t.Errorf("principal = %+v, %v", p, ok)
	}
}
