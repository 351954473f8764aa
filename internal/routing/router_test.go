package routing

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(Config{
		BaseURL: "http://search.internal:9200",
		Tenants: []Tenant{
			{ID: "UTEC", Port: 9201},
			{ID: "MIT", Port: 9202},
			{ID: "EPFL", Endpoint: "https://epfl.es.example.com/"},
		},
		Stages:  []tenant.Stage{"dev", "test", "prod"},
		Sources: map[string]tenant.Stage{"legacy-records": "prod"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRouter_Resolve(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		tenant string
		want   tenant.Endpoint
	}{
		{"UTEC", "http://search.internal:9201"},
		{"MIT", "http://search.internal:9202"},
		{"EPFL", "https://epfl.es.example.com"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.tenant)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", tt.tenant, err)
		}
		if got != tt.want {
			t.Errorf("Resolve(%s) = %q, want %q", tt.tenant, got, tt.want)
		}
	}

	if _, err := r.Resolve("STANFORD"); !errors.Is(err, domain.ErrTenantNotAuthorized) {
		t.Errorf("err = %v, want ErrTenantNotAuthorized", err)
	}
	if domain.IsRetryable(domain.ErrTenantNotAuthorized) {
		t.Error("unauthorized tenant must not be retryable")
	}
}

func TestRouter_Descriptor(t *testing.T) {
	r := newTestRouter(t)

	d, err := r.Descriptor("UTEC", "prod")
	if err != nil {
		t.Fatalf("Descriptor: %v", err)
	}
	if d.IndexName != "records_utec_prod" {
		t.Errorf("IndexName = %q", d.IndexName)
	}
	d, _ = r.Descriptor("MIT", "dev")
	if d.IndexName != "records_mit_dev" {
		t.Errorf("IndexName = %q", d.IndexName)
	}

	if _, err := r.Descriptor("UTEC", "staging"); !errors.Is(err, domain.ErrStageUnresolved) {
		t.Errorf("err = %v, want ErrStageUnresolved", err)
	}
}

func TestRouter_StageFor(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		ref     string
		want    tenant.Stage
		wantErr bool
	}{
		{"arn:aws:dynamodb:us-east-1:123456789012:table/records-prod/stream/2024-01-01T00:00:00.000", "prod", false},
		{"arn:aws:dynamodb:us-east-1:123456789012:table/records-dev/stream/x", "dev", false},
		{"cdc.records_test", "test", false},
		{"records-PROD", "prod", false},
		{"legacy-records", "prod", false},
		{"records-staging", "", true},
		{"records", "", true},
		{"", "", true},
		{"arn:aws:kinesis:us-east-1:1:stream/foo", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.StageFor(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrStageUnresolved) {
					t.Fatalf("err = %v, want ErrStageUnresolved", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("StageFor: %v", err)
			}
			if got != tt.want {
				t.Errorf("StageFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	stages := []tenant.Stage{"dev"}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no tenants", Config{Stages: stages}},
		{"no stages", Config{Tenants: []Tenant{{ID: "A", Endpoint: "http://a"}}}},
		{"bad stage", Config{Stages: []tenant.Stage{"Dev"}, Tenants: []Tenant{{ID: "A", Endpoint: "http://a"}}}},
		{"case collision", Config{Stages: stages, Tenants: []Tenant{
			{ID: "Utec", Endpoint: "http://a"}, {ID: "UTEC", Endpoint: "http://b"},
		}}},
		{"no endpoint", Config{Stages: stages, Tenants: []Tenant{{ID: "A"}}}},
		{"bad endpoint", Config{Stages: stages, Tenants: []Tenant{{ID: "A", Endpoint: "not a url"}}}},
		{"source unknown stage", Config{
			Stages: stages, Tenants: []Tenant{{ID: "A", Endpoint: "http://a"}},
			Sources: map[string]tenant.Stage{"t": "prod"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRouter_DescriptorsAndEndpoints(t *testing.T) {
	r, err := New(Config{
		Tenants: []Tenant{
			{ID: "B", Endpoint: "http://shared:9200"},
			{ID: "A", Endpoint: "http://shared:9200"},
		},
		Stages: []tenant.Stage{"dev"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ds := r.Descriptors("dev")
	if len(ds) != 2 || ds[0].TenantID != "A" || ds[1].IndexName != "records_b_dev" {
		t.Errorf("Descriptors = %+v", ds)
	}
	if eps := r.Endpoints(); len(eps) != 1 {
		t.Errorf("Endpoints = %v, want one shared endpoint", eps)
	}
}
