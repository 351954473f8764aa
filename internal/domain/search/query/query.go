// Package query translates a validated search request into the engine's query DSL.
package query

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kailas-cloud/indexsync/internal/domain/search/request"
	"github.com/kailas-cloud/indexsync/internal/domain/search/strategy"
)

// Document fields the queries target.
const (
	FieldName        = "name"
	FieldNameKeyword = "name.keyword"
	FieldDescription = "description"
	FieldInstructor  = "instructor"
	FieldCategory    = "category"
	FieldStatus      = "status"
	FieldSearchBlob  = "search_blob"
	FieldCreatedAt   = "created_at"
)

// ActiveStatus is the only status searches return.
const ActiveStatus = "active"

// HighlightTags wrap matched fragments.
const (
	HighlightPre  = "<mark>"
	HighlightPost = "</mark>"
)

// AutocompleteSource is the minimal projection fetched for autocomplete.
var AutocompleteSource = []string{
	"record_id", "name", "description", "level", "price", "instructor",
	"duration_hours", "category", "status", "stage",
}

type object = map[string]any

// Request is a search request ready for the engine.
type Request struct {
	Strategy strategy.Strategy
	From     int
	Size     int
	Timeout  time.Duration
	Body     map[string]any
}

// JSON encodes the request body. Map keys are sorted, so equal requests encode
// byte-identically.
func (q Request) JSON() ([]byte, error) {
	return json.Marshal(q.Body)
}

// Build produces the engine request for r. Pure; performs no I/O.
func Build(r request.Request) Request {
	s := r.Strategy()
	text := r.Query()

	var should []any
	switch s {
	case strategy.Fuzzy:
		should = fuzzyClauses(text)
	case strategy.Prefix:
		should = prefixClauses(text)
	case strategy.Autocomplete:
		should = autocompleteClauses(text)
	case strategy.Hybrid:
		should = hybridClauses(text)
	default:
		should = fulltextClauses(text)
	}

	// No engine-side "timeout": it returns partial hits on expiry. The caller's
	// context deadline bounds the request instead.
	body := object{
		"from": r.Offset(),
		"size": r.Limit(),
		"query": object{
			"bool": object{
				"should":               should,
				"minimum_should_match": 1,
				"filter":               []any{object{"term": object{FieldStatus: ActiveStatus}}},
			},
		},
		"highlight": object{
			"pre_tags":  []string{HighlightPre},
			"post_tags": []string{HighlightPost},
			"fields": object{
				FieldName:        object{"fragment_size": 150},
				FieldDescription: object{"fragment_size": 200},
				FieldSearchBlob:  object{"fragment_size": 100},
			},
		},
		"sort": []any{
			object{"_score": object{"order": "desc"}},
			object{FieldCreatedAt: object{"order": "desc", "missing": "_last", "unmapped_type": "date"}},
		},
	}
	if s == strategy.Autocomplete {
		body["_source"] = AutocompleteSource
	}

	return Request{Strategy: s, From: r.Offset(), Size: r.Limit(), Timeout: s.Timeout(), Body: body}
}

func fulltextClauses(text string) []any {
	return []any{
		object{"multi_match": object{
			"query":     text,
			"fields":    []string{FieldName + "^3", FieldDescription + "^2", FieldInstructor + "^2", FieldCategory + "^2", FieldSearchBlob},
			"type":      "best_fields",
			"fuzziness": "AUTO",
		}},
		object{"wildcard": object{FieldSearchBlob: object{
			"value": "*" + EscapeWildcard(strings.ToLower(text)) + "*",
		}}},
	}
}

func fuzzyClauses(text string) []any {
	fields := []string{FieldName, FieldDescription, FieldSearchBlob}
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, object{"fuzzy": object{f: object{"value": text, "fuzziness": 2}}})
	}
	return out
}

func prefixClauses(text string) []any {
	return []any{
		prefix(FieldNameKeyword, text, 0),
		prefix(FieldSearchBlob, strings.ToLower(text), 0),
		prefix(FieldCategory, text, 0),
	}
}

func autocompleteClauses(text string) []any {
	return []any{
		phrasePrefix(FieldName, text, 10, 5),
		prefix(FieldNameKeyword, text, 8),
		prefix(FieldCategory, text, 6),
		phrasePrefix(FieldInstructor, text, 4, 3),
		phrasePrefix(FieldSearchBlob, text, 2, 8),
	}
}

func hybridClauses(text string) []any {
	return []any{
		object{"match_phrase": object{FieldName: object{"query": text, "boost": 15.0}}},
		object{"multi_match": object{
			"query":     text,
			"fields":    []string{FieldName + "^5", FieldDescription + "^3", FieldInstructor + "^2", FieldCategory + "^2", FieldSearchBlob},
			"type":      "best_fields",
			"fuzziness": "AUTO",
			"boost":     8.0,
		}},
		prefix(FieldNameKeyword, text, 6),
		object{"fuzzy": object{FieldName: object{"value": text, "fuzziness": 1, "boost": 4.0}}},
		phrasePrefix(FieldName, text, 5, 10),
	}
}

func prefix(field, value string, boost float64) object {
	p := object{"value": value}
	if boost > 0 {
		p["boost"] = boost
	}
	return object{"prefix": object{field: p}}
}

func phrasePrefix(field, text string, boost float64, maxExpansions int) object {
	return object{"match_phrase_prefix": object{field: object{
		"query":          text,
		"boost":          boost,
		"max_expansions": maxExpansions,
	}}}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// EscapeWildcard escapes the wildcard metacharacters of user input.
func EscapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
