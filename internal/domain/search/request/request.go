// Package request holds the validated parameters of a search call.
package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length in characters.
	MaxQueryLength = 512
	DefaultLimit   = 10
	// MaxWindow mirrors the engine's default max_result_window.
	MaxWindow = 10000
)

// Request is a validated search query.
type Request struct {
	query     string
	strategy  strategy.Strategy
	offset    int
	limit     int
	requested int
	tenantID  string
}

// New validates and normalizes search parameters. Defaults: strategy=fulltext,
// limit=10. Limit is clamped to the strategy's bound; a clamped limit is not an error.
// Failures wrap domain.ErrInvalidQuery.
func New(query string, s strategy.Strategy, offset, limit int, tenantID string) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, invalid("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return Request{}, invalid("query too long (max %d chars)", MaxQueryLength)
	}
	if s == "" {
		s = strategy.Default
	}
	if !s.IsValid() {
		return Request{}, invalid("unknown strategy %q", s)
	}
	if offset < 0 {
		return Request{}, invalid("offset must not be negative")
	}
	if limit < 0 {
		return Request{}, invalid("limit must be positive")
	}
	if tenantID == "" {
		return Request{}, invalid("tenant is required")
	}

	requested := limit
	if limit == 0 {
		limit = DefaultLimit
	}
	limit = min(limit, s.MaxLimit())
	if offset+limit > MaxWindow {
		return Request{}, invalid("offset + limit must not exceed %d", MaxWindow)
	}

	return Request{
		query:     query,
		strategy:  s,
		offset:    offset,
		limit:     limit,
		requested: requested,
		tenantID:  tenantID,
	}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// Query returns the trimmed query text.
func (r *Request) Query() string { return r.query }

// Strategy returns the search strategy.
func (r *Request) Strategy() strategy.Strategy { return r.strategy }

// Offset returns the number of hits to skip.
func (r *Request) Offset() int { return r.offset }

// Limit returns the page size after clamping.
func (r *Request) Limit() int { return r.limit }

// Clamped reports whether the caller asked for more hits than the strategy serves.
func (r *Request) Clamped() bool { return r.requested > r.limit }

// TenantID returns the tenant whose index is searched.
func (r *Request) TenantID() string { return r.tenantID }

// QueryLength returns the query length in characters.
func (r *Request) QueryLength() int { return utf8.RuneCountInString(r.query) }

// SuggestionReady reports whether the query is long enough for suggestions.
func (r *Request) SuggestionReady() bool { return r.QueryLength() >= 2 }
