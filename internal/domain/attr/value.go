// Package attr holds the record store's typed attribute representation
// (DynamoDB attribute-value JSON) and decodes it into plain Go values.
package attr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tag identifies the type of a typed attribute value.
type Tag string

// Recognized tags.
const (
	TagString    Tag = "S"
	TagNumber    Tag = "N"
	TagBool      Tag = "BOOL"
	TagNull      Tag = "NULL"
	TagMap       Tag = "M"
	TagList      Tag = "L"
	TagStringSet Tag = "SS"
	TagNumberSet Tag = "NS"
	TagBinary    Tag = "B"
	TagBinarySet Tag = "BS"
)

// IsKnown reports whether the tag is one the decoder understands.
func (t Tag) IsKnown() bool {
	switch t {
	case TagString, TagNumber, TagBool, TagNull, TagMap, TagList,
		TagStringSet, TagNumberSet, TagBinary, TagBinarySet:
		return true
	}
	return false
}

// Value is a single tagged attribute value. The payload is kept as raw JSON and only
// interpreted by Decode, so an event can be re-serialized byte-for-byte (dead letters).
type Value struct {
	tag Tag
	raw json.RawMessage
	src json.RawMessage // whole wire object when parsed from JSON
}

// Record maps attribute names to typed values (one mutation image).
type Record map[string]Value

// Tag returns the value's tag. Empty when the wire object carried no key.
func (v Value) Tag() Tag { return v.tag }

// Raw returns the untouched payload under the tag.
func (v Value) Raw() json.RawMessage { return v.raw }

// UnmarshalJSON accepts any single-key object. Unknown tags are kept and rejected by
// Decode, so a bad attribute fails its event rather than the whole batch parse.
func (v *Value) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("attribute value must be an object: %w", err)
	}
	src := append(json.RawMessage(nil), data...)
	switch len(obj) {
	case 0:
		*v = Value{src: src}
	case 1:
		for k, raw := range obj {
			*v = Value{tag: Tag(k), raw: raw, src: src}
		}
	default:
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		// A combined tag is never known, so Decode rejects it.
		*v = Value{tag: Tag(strings.Join(keys, "+")), raw: src, src: src}
	}
	return nil
}

// MarshalJSON writes the value back in wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.src) > 0 {
		return v.src, nil
	}
	if v.tag == "" {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	key, err := json.Marshal(string(v.tag))
	if err != nil {
		return nil, err
	}
	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	if len(v.raw) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(v.raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// S builds a string value.
func S(s string) Value { return mustValue(TagString, s) }

// N builds a number value from its decimal text, as the store sends it.
func N(text string) Value { return mustValue(TagNumber, text) }

// Bool builds a boolean value.
func Bool(b bool) Value { return mustValue(TagBool, b) }

// Null builds a NULL value.
func Null() Value { return mustValue(TagNull, true) }

// M builds a map value.
func M(r Record) Value { return mustValue(TagMap, r) }

// L builds a list value.
func L(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return mustValue(TagList, items)
}

// SS builds a string set value.
func SS(items ...string) Value { return mustValue(TagStringSet, items) }

// NS builds a number set value.
func NS(items ...string) Value { return mustValue(TagNumberSet, items) }

// Raw builds a value with an arbitrary tag and payload; used for replaying foreign data.
func Raw(tag Tag, payload json.RawMessage) Value { return Value{tag: tag, raw: payload} }

func mustValue(tag Tag, payload any) Value {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("attr: marshal %s payload: %v", tag, err))
	}
	return Value{tag: tag, raw: raw}
}
