package stream

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/indexsync/internal/domain"
	"github.com/kailas-cloud/indexsync/internal/domain/attr"
)

const sampleBatch = `{"Records":[
 {"eventID":"1","eventName":"INSERT","eventSourceARN":"arn:aws:dynamodb:us-east-1:1:table/records-dev/stream/x",
  "dynamodb":{"Keys":{"record_id":{"S":"c-1"}},"NewImage":{"tenant_id":{"S":"UTEC"},"record_id":{"S":"c-1"},"price":{"N":"10"}},"SequenceNumber":"100"}},
 {"eventID":"2","eventName":"REMOVE","eventSourceARN":"arn:aws:dynamodb:us-east-1:1:table/records-dev/stream/x",
  "dynamodb":{"OldImage":{"tenant_id":{"S":"UTEC"},"record_id":{"S":"c-2"}},"SequenceNumber":"101"}},
 {"eventName":"MODIFY","dynamodb":{"NewImage":"not an image","SequenceNumber":"102"}}
]}`

func TestDecodeBatch(t *testing.T) {
	events, err := DecodeBatch([]byte(sampleBatch))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}

	ins := events[0]
	if ins.Kind() != KindInsert || ins.Sequence() != "100" || !strings.Contains(ins.SourceRef(), "table/records-dev") {
		t.Errorf("insert = %+v", ins)
	}
	if ins.NewImage()["price"].Tag() != attr.TagNumber {
		t.Errorf("price tag = %q", ins.NewImage()["price"].Tag())
	}
	if ins.Keys()["record_id"].Tag() != attr.TagString {
		t.Error("keys not decoded")
	}

	rm := events[1]
	if rm.Kind() != KindRemove || len(rm.NewImage()) != 0 || string(rm.Image()["record_id"].Raw()) != `"c-2"` {
		t.Errorf("remove = %+v", rm)
	}

	bad := events[2]
	if !errors.Is(bad.Malformed(), domain.ErrDecode) {
		t.Errorf("malformed = %v, want ErrDecode", bad.Malformed())
	}
	if bad.Sequence() != "102" {
		t.Errorf("salvaged sequence = %q", bad.Sequence())
	}
}

func TestDecodeBatch_BadEnvelope(t *testing.T) {
	if _, err := DecodeBatch([]byte(`[1,2]`)); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestDecodePayload_SingleRecord(t *testing.T) {
	events, err := DecodePayload([]byte(` {"eventName":"MODIFY","dynamodb":{"NewImage":{"record_id":{"S":"x"}},"SequenceNumber":"7"}}`))
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(events) != 1 || events[0].Kind() != KindModify || events[0].Sequence() != "7" {
		t.Errorf("events = %+v", events)
	}

	events, err = DecodePayload([]byte(sampleBatch))
	if err != nil || len(events) != 3 {
		t.Fatalf("batch payload = %d, %v", len(events), err)
	}

	if _, err := DecodePayload([]byte("garbage")); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("err = %v, want ErrDecode", err)
	}
}

func TestEvent_MarshalJSON(t *testing.T) {
	events, _ := DecodeBatch([]byte(sampleBatch))
	b, err := json.Marshal(events[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"eventID":"1"`) {
		t.Errorf("decoded event should keep its wire bytes: %s", b)
	}

	built := NewEvent(KindInsert, attr.Record{"record_id": attr.S("c-9")}, nil, "cdc.records-prod", "5")
	b, err = json.Marshal(built)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := DecodePayload(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	e := again[0]
	if e.Kind() != KindInsert || e.SourceRef() != "cdc.records-prod" || e.Sequence() != "5" {
		t.Errorf("round trip = %+v", e)
	}
}

func TestEncodeBatch_RoundTrip(t *testing.T) {
	in := []Event{
		NewEvent(KindInsert, attr.Record{"record_id": attr.S("a")}, nil, "t-dev", "1"),
		NewEvent(KindRemove, nil, attr.Record{"record_id": attr.S("b")}, "t-dev", "2"),
	}
	b, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	out, err := DecodeBatch(b)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(out) != 2 || out[1].Kind() != KindRemove || out[1].Sequence() != "2" {
		t.Errorf("round trip = %+v", out)
	}
}

func TestDeadLetter_JSON(t *testing.T) {
	e := NewMalformed(json.RawMessage(`{"broken`), "ref", "9", domain.ErrDecode)
	o := Outcome{Status: StatusError, Kind: "", Sequence: "9", Err: e.Malformed()}
	dl := NewDeadLetter("batch-1", e, o, time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("x", 3600)))

	b, err := json.Marshal(dl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"event":"{\"broken"`) {
		t.Errorf("invalid raw bytes should be kept as a string: %s", s)
	}
	if !strings.Contains(s, `"error":"decode error"`) || !strings.Contains(s, `"failed_at":"2023-12-31T23:00:00Z"`) {
		t.Errorf("dead letter = %s", s)
	}
}
