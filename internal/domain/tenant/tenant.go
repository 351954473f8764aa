// Package tenant describes where a tenant's documents live: the engine endpoint
// and the per-stage index.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// IndexPrefix starts every managed index name.
const IndexPrefix = "records_"

var (
	stageRegex  = regexp.MustCompile(`^[a-z0-9]+$`)
	tenantRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Stage is a deployment environment (dev, test, prod, ...).
type Stage string

// ValidateStage checks stage syntax. Stages become part of index names.
func ValidateStage(s Stage) error {
	if !stageRegex.MatchString(string(s)) {
		return fmt.Errorf("stage %q must match %s", s, stageRegex)
	}
	return nil
}

// ValidateID checks tenant id syntax.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("tenant id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("tenant id too long (max 64)")
	}
	if !tenantRegex.MatchString(id) {
		return fmt.Errorf("tenant id %q must be alphanumeric with underscores", id)
	}
	return nil
}

// Endpoint is the base URL of the engine cluster serving a tenant.
type Endpoint string

// String returns the URL.
func (e Endpoint) String() string { return string(e) }

// Descriptor identifies one tenant's index in one stage.
type Descriptor struct {
	TenantID  string
	Stage     Stage
	IndexName string
	Endpoint  Endpoint
}

// NewDescriptor derives the descriptor for a tenant and stage.
func NewDescriptor(tenantID string, stage Stage, endpoint Endpoint) Descriptor {
	return Descriptor{
		TenantID:  tenantID,
		Stage:     stage,
		IndexName: IndexName(tenantID, stage),
		Endpoint:  endpoint,
	}
}

// IndexName returns "records_<lower(tenant)>_<stage>".
func IndexName(tenantID string, stage Stage) string {
	return IndexPrefix + strings.ToLower(tenantID) + "_" + string(stage)
}
