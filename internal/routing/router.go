// Package routing maps tenants to engine endpoints and change events to stages.
package routing

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
)

// Tenant is one allow-listed tenant. Endpoint wins over Port; Port is applied to the
// router's base URL.
type Tenant struct {
	ID       string
	Endpoint string
	Port     int
}

// Config configures a Router.
type Config struct {
	BaseURL string
	Tenants []Tenant
	Stages  []tenant.Stage
	// Sources maps a source table name to its stage.
	Sources map[string]tenant.Stage
}

// Router resolves tenants and stages. Immutable after New, safe for concurrent use.
type Router struct {
	endpoints map[string]tenant.Endpoint
	stages    map[tenant.Stage]bool
	sources   map[string]tenant.Stage
	tenantIDs []string
}

// New validates cfg and builds a Router.
func New(cfg Config) (*Router, error) {
	if len(cfg.Tenants) == 0 {
		return nil, fmt.Errorf("at least one tenant is required")
	}
	if len(cfg.Stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	r := &Router{
		endpoints: make(map[string]tenant.Endpoint, len(cfg.Tenants)),
		stages:    make(map[tenant.Stage]bool, len(cfg.Stages)),
		sources:   make(map[string]tenant.Stage, len(cfg.Sources)),
	}
	for _, s := range cfg.Stages {
		if err := tenant.ValidateStage(s); err != nil {
			return nil, err
		}
		r.stages[s] = true
	}

	lowered := make(map[string]string, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		if err := tenant.ValidateID(t.ID); err != nil {
			return nil, err
		}
		// index names lower-case the id, two ids differing only in case would share one
		if prev, dup := lowered[strings.ToLower(t.ID)]; dup {
			return nil, fmt.Errorf("tenant %q collides with %q", t.ID, prev)
		}
		lowered[strings.ToLower(t.ID)] = t.ID

		ep, err := endpointFor(cfg.BaseURL, t)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %w", t.ID, err)
		}
		r.endpoints[t.ID] = ep
		r.tenantIDs = append(r.tenantIDs, t.ID)
	}
	sort.Strings(r.tenantIDs)

	for table, s := range cfg.Sources {
		if !r.stages[s] {
			return nil, fmt.Errorf("source %q maps to unknown stage %q", table, s)
		}
		r.sources[table] = s
	}
	return r, nil
}

func endpointFor(baseURL string, t Tenant) (tenant.Endpoint, error) {
	raw := t.Endpoint
	if raw == "" {
		if baseURL == "" || t.Port == 0 {
			return "", fmt.Errorf("endpoint or base url with port is required")
		}
		u, err := url.Parse(baseURL)
		if err != nil || u.Hostname() == "" {
			return "", fmt.Errorf("invalid base url %q", baseURL)
		}
		u.Host = u.Hostname() + ":" + strconv.Itoa(t.Port)
		raw = u.String()
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q", raw)
	}
	return tenant.Endpoint(strings.TrimRight(raw, "/")), nil
}

// Resolve returns the endpoint of an allow-listed tenant.
func (r *Router) Resolve(tenantID string) (tenant.Endpoint, error) {
	ep, ok := r.endpoints[tenantID]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrTenantNotAuthorized, tenantID)
	}
	return ep, nil
}

// Descriptor resolves the tenant and derives its index descriptor for stage.
func (r *Router) Descriptor(tenantID string, stage tenant.Stage) (tenant.Descriptor, error) {
	ep, err := r.Resolve(tenantID)
	if err != nil {
		return tenant.Descriptor{}, err
	}
	if !r.stages[stage] {
		return tenant.Descriptor{}, fmt.Errorf("%w: unknown stage %q", domain.ErrStageUnresolved, stage)
	}
	return tenant.NewDescriptor(tenantID, stage, ep), nil
}

// Descriptors lists every allowed tenant's descriptor for stage, ordered by tenant id.
func (r *Router) Descriptors(stage tenant.Stage) []tenant.Descriptor {
	out := make([]tenant.Descriptor, 0, len(r.tenantIDs))
	for _, id := range r.tenantIDs {
		out = append(out, tenant.NewDescriptor(id, stage, r.endpoints[id]))
	}
	return out
}

// Endpoints lists the distinct engine endpoints.
func (r *Router) Endpoints() []tenant.Endpoint {
	seen := make(map[tenant.Endpoint]bool, len(r.endpoints))
	var out []tenant.Endpoint
	for _, id := range r.tenantIDs {
		ep := r.endpoints[id]
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	return out
}

// HasStage reports whether stage is configured.
func (r *Router) HasStage(stage tenant.Stage) bool { return r.stages[stage] }

// StageFor resolves the stage from event provenance: a stream ARN, a table name or
// a "cdc.<table>" subject. Payload fields are never consulted.
func (r *Router) StageFor(sourceRef string) (tenant.Stage, error) {
	table := TableName(sourceRef)
	if table == "" {
		return "", fmt.Errorf("%w: empty provenance", domain.ErrStageUnresolved)
	}
	if s, ok := r.sources[table]; ok {
		return s, nil
	}
	if i := strings.LastIndexAny(table, "-_"); i >= 0 && i < len(table)-1 {
		s := tenant.Stage(strings.ToLower(table[i+1:]))
		if r.stages[s] {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: source %q", domain.ErrStageUnresolved, table)
}

// TableName extracts the table name from a provenance reference.
//
//	arn:aws:dynamodb:us-east-1:123:table/courses-prod/stream/2024-01-01T00:00:00.000 -> courses-prod
//	cdc.courses-prod -> courses-prod
func TableName(sourceRef string) string {
	ref := strings.TrimSpace(sourceRef)
	if strings.HasPrefix(ref, "arn:") {
		_, rest, ok := strings.Cut(ref, ":table/")
		if !ok {
			return ""
		}
		table, _, _ := strings.Cut(rest, "/")
		return table
	}
	if after, ok := strings.CutPrefix(ref, "cdc."); ok {
		return after
	}
	return ref
}
