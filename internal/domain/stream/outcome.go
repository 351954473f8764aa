package stream

import "github.com/kailas-cloud/indexsync/internal/domain"

// Status is the terminal state of one dispatched event.
type Status string

// Outcome statuses.
const (
	StatusProcessed Status = "processed"
	StatusIgnored   Status = "ignored"
	StatusError     Status = "error"
)

// Reasons attached to ignored outcomes.
const (
	ReasonTenantNotConfigured = "tenant_not_configured"
	ReasonEventNotHandled     = "event_not_handled"
)

// Outcome is the result of dispatching a single event.
type Outcome struct {
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Tenant   string `json:"tenant,omitempty"`
	Kind     Kind   `json:"event"`
	Stage    string `json:"stage,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Sequence string `json:"sequence,omitempty"`
	Err      error  `json:"-"`
}

// Retryable reports whether the event should be redelivered.
func (o Outcome) Retryable() bool {
	return o.Status == StatusError && domain.IsRetryable(o.Err)
}

// Terminal reports whether the event failed in a way redelivery cannot fix.
func (o Outcome) Terminal() bool {
	return o.Status == StatusError && !domain.IsRetryable(o.Err)
}

// Error returns the failure message, empty on success.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
