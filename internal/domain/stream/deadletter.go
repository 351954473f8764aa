package stream

import "time"

// DeadLetter is an event archived after a terminal failure, with enough context to
// diagnose and replay it.
type DeadLetter struct {
	BatchID  string    `json:"batch_id"`
	Outcome  Outcome   `json:"outcome"`
	Error    string    `json:"error"`
	Event    Event     `json:"event"`
	FailedAt time.Time `json:"failed_at"`
}

// NewDeadLetter builds the archive entry for a failed event.
func NewDeadLetter(batchID string, e Event, o Outcome, at time.Time) DeadLetter {
	return DeadLetter{BatchID: batchID, Outcome: o, Error: o.Error(), Event: e, FailedAt: at.UTC()}
}
