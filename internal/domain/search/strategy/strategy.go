// Package strategy names the query strategies of the search API.
package strategy

import "time"

// Strategy is the search strategy.
type Strategy string

// Search strategy constants.
const (
	// Fulltext is a weighted multi-field match with a substring fallback.
	Fulltext Strategy = "fulltext"
	// Fuzzy tolerates up to two edits per term.
	Fuzzy  Strategy = "fuzzy"
	Prefix Strategy = "prefix"
	// Autocomplete serves interactive typing: few hits, short timeout, minimal source.
	Autocomplete Strategy = "autocomplete"
	// Hybrid unions every heuristic for recall at the cost of latency.
	Hybrid Strategy = "hybrid"
)

// Default is used when the caller names no strategy.
const Default = Fulltext

// Result size bounds.
const (
	MaxLimit             = 100
	MaxAutocompleteLimit = 8
)

// Default engine timeouts.
const (
	DefaultTimeout             = 10 * time.Second
	DefaultAutocompleteTimeout = 3 * time.Second
)

// All lists the supported strategies.
func All() []Strategy {
	return []Strategy{Fulltext, Fuzzy, Prefix, Autocomplete, Hybrid}
}

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	switch s {
	case Fulltext, Fuzzy, Prefix, Autocomplete, Hybrid:
		return true
	}
	return false
}

// MaxLimit returns the largest page size the strategy serves.
func (s Strategy) MaxLimit() int {
	if s == Autocomplete {
		return MaxAutocompleteLimit
	}
	return MaxLimit
}

// Timeout returns the default engine timeout of the strategy.
func (s Strategy) Timeout() time.Duration {
	if s == Autocomplete {
		return DefaultAutocompleteTimeout
	}
	return DefaultTimeout
}
