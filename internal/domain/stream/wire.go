package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/attr"
)

// Wire form: the DynamoDB Streams record shape, shared by every feed transport and
// by the dead-letter archive so archived events can be replayed as-is.

type wireBatch struct {
	Records []json.RawMessage `json:"Records"`
}

type wireRecord struct {
	EventID        string     `json:"eventID,omitempty"`
	EventName      string     `json:"eventName"`
	EventSourceARN string     `json:"eventSourceARN,omitempty"`
	DynamoDB       wireChange `json:"dynamodb"`
}

type wireChange struct {
	Keys           attr.Record `json:"Keys,omitempty"`
	NewImage       attr.Record `json:"NewImage,omitempty"`
	OldImage       attr.Record `json:"OldImage,omitempty"`
	SequenceNumber string      `json:"SequenceNumber,omitempty"`
}

// DecodeBatch parses a {"Records":[...]} envelope. Only an unparseable envelope is an
// error; a bad entry becomes a malformed Event so the rest of the batch proceeds.
func DecodeBatch(data []byte) ([]Event, error) {
	var b wireBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: batch envelope: %w", domain.ErrDecode, err)
	}
	events := make([]Event, 0, len(b.Records))
	for _, raw := range b.Records {
		events = append(events, DecodeRecord(raw))
	}
	return events, nil
}

// DecodeRecord parses one stream record. Failures yield a malformed Event.
func DecodeRecord(raw json.RawMessage) Event {
	raw = append(json.RawMessage(nil), raw...)

	var r wireRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		seq, ref := salvage(raw)
		return NewMalformed(raw, ref, seq, fmt.Errorf("%w: stream record: %w", domain.ErrDecode, err))
	}
	e := NewEvent(Kind(r.EventName), r.DynamoDB.NewImage, r.DynamoDB.OldImage,
		r.EventSourceARN, r.DynamoDB.SequenceNumber)
	return e.WithKeys(r.DynamoDB.Keys).withRaw(raw)
}

// DecodePayload accepts either a batch envelope or a single record.
func DecodePayload(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", domain.ErrDecode, err)
	}
	if _, ok := probe["Records"]; ok {
		return DecodeBatch(trimmed)
	}
	return []Event{DecodeRecord(trimmed)}, nil
}

// salvage extracts what it can from a record whose images failed to parse, so the
// failure can still be reported by sequence number.
func salvage(raw json.RawMessage) (seq, ref string) {
	var partial struct {
		EventSourceARN string `json:"eventSourceARN"`
		DynamoDB       struct {
			SequenceNumber string `json:"SequenceNumber"`
		} `json:"dynamodb"`
	}
	_ = json.Unmarshal(raw, &partial)
	return partial.DynamoDB.SequenceNumber, partial.EventSourceARN
}

// MarshalJSON writes the event in wire form, byte-for-byte when it was decoded.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		if !json.Valid(e.raw) {
			return json.Marshal(string(e.raw))
		}
		return e.raw, nil
	}
	return json.Marshal(wireRecord{
		EventName:      string(e.kind),
		EventSourceARN: e.sourceRef,
		DynamoDB: wireChange{
			Keys:           e.keys,
			NewImage:       e.newImage,
			OldImage:       e.oldImage,
			SequenceNumber: e.sequence,
		},
	})
}

// EncodeBatch writes events as a {"Records":[...]} envelope.
func EncodeBatch(events []Event) ([]byte, error) {
	records := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		b, err := e.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", e.sequence, err)
		}
		records = append(records, b)
	}
	return json.Marshal(wireBatch{Records: records})
}
