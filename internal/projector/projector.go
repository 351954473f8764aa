// Package projector turns domain records into flat search documents.
package projector

import (
	"strings"
	"time"

	"github.com/kailas-cloud/indexsync/internal/domain/record"
	"github.com/kailas-cloud/indexsync/internal/domain/tenant"
)

// DefaultStatus applies when a record carries no status.
const DefaultStatus = "active"

// statusSynonyms maps legacy spellings found in existing records to the
// canonical status the query filter matches.
var statusSynonyms = map[string]string{
	"activo":    "active",
	"activa":    "active",
	"inactivo":  "inactive",
	"inactiva":  "inactive",
	"archivado": "archived",
	"archivada": "archived",
}

// Document is the engine representation of a record. Field order is fixed so the
// serialized form is deterministic.
type Document struct {
	RecordID      string         `json:"record_id"`
	TenantID      string         `json:"tenant_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Level         string         `json:"level"`
	DurationHours float64        `json:"duration_hours"`
	Price         float64        `json:"price"`
	Published     bool           `json:"published"`
	Tags          []string       `json:"tags"`
	Instructor    string         `json:"instructor"`
	Category      string         `json:"category"`
	Status        string         `json:"status"`
	CreatedAt     string         `json:"created_at,omitempty"`
	ModifiedAt    string         `json:"modified_at,omitempty"`
	Stage         string         `json:"stage"`
	SearchBlob    string         `json:"search_blob"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// NormalizeStatus trims, lower-cases and canonicalizes a status. The result is
// matched by an exact keyword filter at query time.
func NormalizeStatus(raw string) string {
	status := strings.ToLower(strings.TrimSpace(raw))
	if status == "" {
		return DefaultStatus
	}
	if canonical, ok := statusSynonyms[status]; ok {
		return canonical
	}
	return status
}

// ID returns the engine document id.
func (d Document) ID() string { return d.RecordID }

// Project builds the search document for r in the given stage. Pure.
func Project(r record.Record, stage tenant.Stage) Document {
	a := r.Attributes()

	status := NormalizeStatus(a.Status)
	tags := SanitizeTags(a.Tags)

	doc := Document{
		RecordID:    r.RecordID(),
		TenantID:    r.TenantID(),
		Name:        a.Name,
		Description: a.Description,
		Level:       a.Level,
		Tags:        tags,
		Instructor:  a.Instructor,
		Category:    a.Category,
		Status:      status,
		CreatedAt:   formatTime(r.CreatedAt()),
		ModifiedAt:  formatTime(a.ModifiedAt),
		Stage:       string(stage),
	}
	if a.DurationHours != nil {
		doc.DurationHours = *a.DurationHours
	}
	if a.Price != nil {
		doc.Price = *a.Price
	}
	if a.Published != nil {
		doc.Published = *a.Published
	}
	if len(a.Extra) > 0 {
		doc.Extra = make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			doc.Extra[k] = v
		}
	}

	parts := append([]string{a.Name, a.Description, a.Level, a.Instructor, a.Category, status}, tags...)
	doc.SearchBlob = SearchBlob(parts...)
	return doc
}

// SanitizeTags keeps string entries that are non-blank after trimming, trimmed,
// in their original order. Duplicates are kept. Never returns nil.
func SanitizeTags(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SearchBlob joins the non-blank parts with single spaces and lower-cases the result.
func SearchBlob(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
