// Package result holds ranked search hits and the page returned to callers.
package result

import "github.com/kailas-cloud/indexsync/internal/domain/search/strategy"

// Fields is the projection of a record returned with a hit.
type Fields struct {
	RecordID      string   `json:"record_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Level         string   `json:"level"`
	DurationHours float64  `json:"duration_hours"`
	Price         float64  `json:"price"`
	Published     bool     `json:"published"`
	Tags          []string `json:"tags,omitempty"`
	Instructor    string   `json:"instructor"`
	Category      string   `json:"category"`
	Status        string   `json:"status"`
	Stage         string   `json:"stage"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

// Hit is a single search hit.
type Hit struct {
	recordID   string
	score      float64
	fields     Fields
	highlights map[string][]string
	snippet    string
}

// New creates a search hit.
func New(recordID string, score float64, fields Fields, highlights map[string][]string, snippet string) Hit {
	return Hit{recordID: recordID, score: score, fields: fields, highlights: highlights, snippet: snippet}
}

// RecordID returns the record identifier.
func (h *Hit) RecordID() string { return h.recordID }

// Score returns the engine relevance score.
func (h *Hit) Score() float64 { return h.score }

// Fields returns the projected record fields.
func (h *Hit) Fields() Fields { return h.fields }

// Highlights returns highlighted fragments by field.
func (h *Hit) Highlights() map[string][]string { return h.highlights }

// Snippet returns the autocomplete suggestion line, empty for other strategies.
func (h *Hit) Snippet() string { return h.snippet }

// Page is one page of ranked hits plus response metadata.
type Page struct {
	Total           int
	TookMillis      int
	Hits            []Hit
	Offset          int
	Limit           int
	Strategy        strategy.Strategy
	TenantID        string
	Stage           string
	Index           string
	IndexMissing    bool
	QueryLength     int
	SuggestionReady bool
}

// IsAutocomplete reports whether the page serves interactive typing.
func (p *Page) IsAutocomplete() bool { return p.Strategy == strategy.Autocomplete }
