package attr

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

// DecodeError reports the attribute path that could not be decoded.
type DecodeError struct {
	Path   string
	Tag    Tag
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("decode %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("decode %s (%s): %s", e.Path, e.Tag, e.Reason)
}

func (e *DecodeError) Unwrap() error { return domain.ErrDecode }

// Decode converts a typed record into a plain value tree. Numbers become int64 when
// their text is an integer that fits, float64 otherwise. Keys are visited in sorted
// order so the first error reported is deterministic.
func Decode(r Record) (map[string]any, error) {
	return decodeMap(r, "")
}

// DecodeValue converts a single typed value.
func DecodeValue(v Value) (any, error) {
	return decodeValue(v, "$")
}

func decodeMap(r Record, prefix string) (map[string]any, error) {
	out := make(map[string]any, len(r))
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		val, err := decodeValue(r[k], path)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

func decodeValue(v Value, path string) (any, error) {
	if v.tag == "" {
		return nil, &DecodeError{Path: path, Reason: "value carries no type tag"}
	}
	if !v.tag.IsKnown() {
		return nil, &DecodeError{Path: path, Tag: v.tag, Reason: "unrecognized type tag"}
	}

	switch v.tag {
	case TagString:
		var s string
		if err := json.Unmarshal(v.raw, &s); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		return s, nil

	case TagNumber:
		var text string
		if err := json.Unmarshal(v.raw, &text); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		return parseNumber(text, path)

	case TagBool:
		var b bool
		if err := json.Unmarshal(v.raw, &b); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		return b, nil

	case TagNull:
		return nil, nil

	case TagMap:
		var m Record
		if err := json.Unmarshal(v.raw, &m); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		return decodeMap(m, path)

	case TagList:
		var items []Value
		if err := json.Unmarshal(v.raw, &items); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		out := make([]any, len(items))
		for i, item := range items {
			val, err := decodeValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil

	case TagStringSet:
		var items []string
		if err := json.Unmarshal(v.raw, &items); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil

	case TagNumberSet:
		var items []string
		if err := json.Unmarshal(v.raw, &items); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		out := make([]any, len(items))
		for i, text := range items {
			n, err := parseNumber(text, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case TagBinary:
		var b []byte // base64 on the wire
		if err := json.Unmarshal(v.raw, &b); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		return b, nil

	case TagBinarySet:
		var bs [][]byte
		if err := json.Unmarshal(v.raw, &bs); err != nil {
			return nil, payloadErr(path, v.tag, err)
		}
		out := make([]any, len(bs))
		for i, b := range bs {
			out[i] = b
		}
		return out, nil
	}

	return nil, &DecodeError{Path: path, Tag: v.tag, Reason: "unrecognized type tag"}
}

func parseNumber(text, path string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &DecodeError{Path: path, Tag: TagNumber, Reason: "empty number"}
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, &DecodeError{Path: path, Tag: TagNumber, Reason: fmt.Sprintf("invalid number %q", text)}
	}
	return f, nil
}

func payloadErr(path string, tag Tag, err error) error {
	return &DecodeError{Path: path, Tag: tag, Reason: "malformed payload: " + err.Error()}
}
