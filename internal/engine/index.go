package engine

import (
	"errors"
	"strconv"
)

// FieldType enumerates supported mapping field types.
type FieldType string

const (
	// FieldKeyword is an exact-match string field.
	FieldKeyword FieldType = "keyword"
	// FieldText is an analyzed full-text field.
	FieldText FieldType = "text"
	// FieldFloat is a numeric field.
	FieldFloat FieldType = "float"
	// FieldBoolean is a boolean field.
	FieldBoolean FieldType = "boolean"
	// FieldDate is a date field.
	FieldDate FieldType = "date"
	// FieldObject is an object field; with Disabled it is stored but not indexed.
	FieldObject FieldType = "object"
)

// Analyzer is a custom analyzer: one tokenizer followed by token filters.
type Analyzer struct {
	Name      string
	Tokenizer string
	Filters   []string
}

// IndexField describes a single field in the mapping.
type IndexField struct {
	Name     string
	Type     FieldType
	Analyzer string // TEXT only

	// TEXT options
	KeywordSubfield bool // adds <name>.keyword
	IgnoreAbove     int  // for the keyword subfield

	// OBJECT options
	Disabled bool
}

// IndexDefinition is a complete index definition used by index creation.
type IndexDefinition struct {
	Name      string
	Shards    int
	Replicas  int
	Analyzers []Analyzer
	Fields    []IndexField
}

var builtinAnalyzers = map[string]bool{
	"standard": true, "simple": true, "whitespace": true, "keyword": true,
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIndexName(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	if idx.Shards < 0 || idx.Replicas < 0 {
		return errors.New("shards and replicas must not be negative")
	}

	analyzers := make(map[string]bool, len(idx.Analyzers))
	for _, a := range idx.Analyzers {
		if a.Name == "" || a.Tokenizer == "" {
			return errors.New("analyzer requires a name and a tokenizer")
		}
		if analyzers[a.Name] {
			return errors.New("duplicate analyzer: " + a.Name)
		}
		analyzers[a.Name] = true
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		if seen[f.Name] {
			return errors.New("duplicate field name: " + f.Name)
		}
		seen[f.Name] = true

		if f.Analyzer != "" {
			if f.Type != FieldText {
				return errors.New("analyzer set on non-text field: " + f.Name)
			}
			if !analyzers[f.Analyzer] && !builtinAnalyzers[f.Analyzer] {
				return errors.New("unknown analyzer " + f.Analyzer + " on field " + f.Name)
			}
		}
	}

	return nil
}

// Body returns the index creation request body (settings and mappings).
func (idx *IndexDefinition) Body() map[string]any {
	settings := map[string]any{}
	if idx.Shards > 0 {
		settings["number_of_shards"] = idx.Shards
	}
	if idx.Replicas > 0 {
		settings["number_of_replicas"] = idx.Replicas
	}
	if len(idx.Analyzers) > 0 {
		analyzers := make(map[string]any, len(idx.Analyzers))
		for _, a := range idx.Analyzers {
			filters := a.Filters
			if filters == nil {
				filters = []string{}
			}
			analyzers[a.Name] = map[string]any{
				"type":      "custom",
				"tokenizer": a.Tokenizer,
				"filter":    filters,
			}
		}
		settings["analysis"] = map[string]any{"analyzer": analyzers}
	}

	props := make(map[string]any, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		m := map[string]any{"type": string(f.Type)}
		if f.Analyzer != "" {
			m["analyzer"] = f.Analyzer
		}
		if f.KeywordSubfield {
			kw := map[string]any{"type": string(FieldKeyword)}
			if f.IgnoreAbove > 0 {
				kw["ignore_above"] = f.IgnoreAbove
			}
			m["fields"] = map[string]any{"keyword": kw}
		}
		if f.Disabled {
			m["enabled"] = false
		}
		props[f.Name] = m
	}

	return map[string]any{
		"settings": settings,
		"mappings": map[string]any{
			"dynamic":    "strict",
			"properties": props,
		},
	}
}

// IsValidIndexName returns true if s is a lower-case engine index name:
// [a-z0-9_-]+, not starting with '_' or '-', at most 255 bytes.
func IsValidIndexName(s string) bool {
	if s == "" || len(s) > 255 || s[0] == '_' || s[0] == '-' {
		return false
	}
	for _, r := range s {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '_' && r != '-' {
			return false
		}
	}
	return true
}
