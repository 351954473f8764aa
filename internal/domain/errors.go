package domain

import (
	"errors"
	"fmt"
)

// Pipeline errors. Terminal ones are acknowledged (skip or dead-letter), retryable ones
// ask the feed to redeliver the event.
var (
	// ErrDecode signals a malformed typed attribute value in a mutation image.
	ErrDecode = errors.New("decode error")
	// ErrInvalidRecord signals a decoded image that does not satisfy the record schema.
	ErrInvalidRecord = fmt.Errorf("invalid record: %w", ErrDecode)
	// ErrTenantNotAuthorized signals a tenant outside the configured allow-list.
	ErrTenantNotAuthorized = errors.New("tenant not authorized")
	// ErrEventKindUnrecognized signals a mutation kind other than INSERT, MODIFY or REMOVE.
	ErrEventKindUnrecognized = errors.New("event kind unrecognized")
	// ErrStageUnresolved signals an event whose provenance maps to no known stage.
	ErrStageUnresolved = errors.New("stage unresolved")
	// ErrEngineUnavailable signals a transient engine failure (5xx, 429, timeout, network).
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrEngineRejected signals a request the engine refused as invalid (4xx).
	ErrEngineRejected = errors.New("engine rejected request")
	// ErrIndexProvision signals a failure to probe or create an index.
	ErrIndexProvision = errors.New("index provision failure")
	// ErrRedeliver marks a batch that has at least one retryable failure.
	ErrRedeliver = errors.New("batch needs redelivery")
)

// Query errors.
var (
	// ErrInvalidQuery signals malformed search parameters.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrSearchUnavailable signals that the engine could not serve the query.
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrUnauthenticated signals a missing or rejected bearer credential.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// IsRetryable reports whether redelivering the work that produced err may succeed.
// Anything not known to be terminal or an expected skip is retried; provisioning
// failures are retryable unless the engine rejected the schema.
func IsRetryable(err error) bool {
	if err == nil || IsTerminal(err) {
		return false
	}
	return !errors.Is(err, ErrTenantNotAuthorized) && !errors.Is(err, ErrEventKindUnrecognized)
}

// IsTerminal reports whether err can never succeed on redelivery and must be alerted.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrStageUnresolved) ||
		errors.Is(err, ErrEngineRejected)
}
