// Package stream holds mutation events read from the record store's change feed and
// the per-event outcomes the dispatcher reports back.
package stream

import (
	"encoding/json"

	"github.com/kailas-cloud/indexsync/internal/domain/attr"
)

// Kind is the mutation kind of a change event.
type Kind string

// Mutation kinds.
const (
	KindInsert Kind = "INSERT"
	KindModify Kind = "MODIFY"
	KindRemove Kind = "REMOVE"
)

// IsHandled reports whether the dispatcher acts on this kind.
func (k Kind) IsHandled() bool {
	return k == KindInsert || k == KindModify || k == KindRemove
}

// Event is one change-feed entry (immutable, lives for a single dispatch).
type Event struct {
	kind      Kind
	newImage  attr.Record
	oldImage  attr.Record
	keys      attr.Record
	sourceRef string
	sequence  string

	raw       json.RawMessage // wire form as received
	malformed error
}

// NewEvent creates an Event. sourceRef identifies the originating table or stream and
// is the only input used to resolve the stage.
func NewEvent(kind Kind, newImage, oldImage attr.Record, sourceRef, sequence string) Event {
	return Event{kind: kind, newImage: newImage, oldImage: oldImage, sourceRef: sourceRef, sequence: sequence}
}

// NewMalformed wraps a feed entry that could not be parsed. The dispatcher fails it
// as a decode error and archives raw.
func NewMalformed(raw json.RawMessage, sourceRef, sequence string, err error) Event {
	return Event{raw: raw, sourceRef: sourceRef, sequence: sequence, malformed: err}
}

// WithKeys returns a copy carrying the primary key attributes.
func (e Event) WithKeys(keys attr.Record) Event {
	e.keys = keys
	return e
}

// WithSourceRef returns a copy with the provenance replaced. Transports use it when
// provenance comes from the channel (subject, queue) rather than the payload.
func (e Event) WithSourceRef(ref string) Event {
	e.sourceRef = ref
	return e
}

// withRaw keeps the wire bytes for dead-lettering.
func (e Event) withRaw(raw json.RawMessage) Event {
	e.raw = raw
	return e
}

// Malformed returns the parse failure of an unparseable entry.
func (e Event) Malformed() error { return e.malformed }

// Kind returns the mutation kind, possibly one the dispatcher ignores.
func (e Event) Kind() Kind { return e.kind }

// NewImage returns the post-mutation image (nil for REMOVE).
func (e Event) NewImage() attr.Record { return e.newImage }

// OldImage returns the pre-mutation image when the feed carries it.
func (e Event) OldImage() attr.Record { return e.oldImage }

// SourceRef returns the event provenance.
func (e Event) SourceRef() string { return e.sourceRef }

// Sequence returns the feed position, used to report partial batch failures.
func (e Event) Sequence() string { return e.sequence }

// Keys returns the primary key attributes when the feed carries them.
func (e Event) Keys() attr.Record { return e.keys }

// Image returns the image carrying the record identity: new, else old, else keys.
func (e Event) Image() attr.Record {
	switch {
	case len(e.newImage) > 0:
		return e.newImage
	case len(e.oldImage) > 0:
		return e.oldImage
	}
	return e.keys
}
