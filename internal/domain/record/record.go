// Package record holds the schema-validated domain record reconstructed from a
// decoded mutation image.
package record

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kailas-cloud/indexsync/internal/domain"
)

// Image keys with fixed meaning. Every other key is an extension attribute.
const (
	KeyTenantID      = "tenant_id"
	KeyRecordID      = "record_id"
	KeyCreatedAt     = "created_at"
	KeyName          = "name"
	KeyDescription   = "description"
	KeyLevel         = "level"
	KeyDurationHours = "duration_hours"
	KeyPrice         = "price"
	KeyPublished     = "published"
	KeyTags          = "tags"
	KeyInstructor    = "instructor"
	KeyCategory      = "category"
	KeyStatus        = "status"
	KeyModifiedAt    = "modified_at"
)

// MaxExtra bounds the extension map.
const MaxExtra = 16

var (
	idRegex  = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
	keyRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)
)

// Attributes is the fixed set of business fields plus a bounded extension map.
// Pointers distinguish an absent attribute from its zero value.
type Attributes struct {
	Name          string
	Description   string
	Level         string
	DurationHours *float64
	Price         *float64
	Published     *bool
	Tags          []any // raw, sanitized at projection
	Instructor    string
	Category      string
	Status        string
	ModifiedAt    *time.Time
	Extra         map[string]any
}

// Record is a domain record (immutable value object).
type Record struct {
	tenantID   string
	recordID   string
	createdAt  *time.Time
	attributes Attributes
}

// FromImage validates a decoded image against the record schema.
// Failures wrap domain.ErrInvalidRecord.
func FromImage(img map[string]any) (Record, error) {
	tenantID, err := requiredID(img, KeyTenantID)
	if err != nil {
		return Record{}, err
	}
	recordID, err := requiredID(img, KeyRecordID)
	if err != nil {
		return Record{}, err
	}
	createdAt, err := optionalTime(img, KeyCreatedAt)
	if err != nil {
		return Record{}, err
	}
	attrs, err := parseAttributes(img)
	if err != nil {
		return Record{}, err
	}
	return Record{tenantID: tenantID, recordID: recordID, createdAt: createdAt, attributes: attrs}, nil
}

// Identity extracts tenant and record ids only. REMOVE events carry the old image,
// whose remaining attributes are irrelevant and not validated.
func Identity(img map[string]any) (tenantID, recordID string, err error) {
	if tenantID, err = requiredID(img, KeyTenantID); err != nil {
		return "", "", err
	}
	if recordID, err = requiredID(img, KeyRecordID); err != nil {
		return "", "", err
	}
	return tenantID, recordID, nil
}

// TenantHint returns the tenant id if present as a string, for outcome reporting on
// records that fail validation.
func TenantHint(img map[string]any) string {
	s, _ := img[KeyTenantID].(string)
	return s
}

// Reconstruct creates a Record without validation (tests, replay tooling).
func Reconstruct(tenantID, recordID string, createdAt *time.Time, attrs Attributes) Record {
	return Record{tenantID: tenantID, recordID: recordID, createdAt: createdAt, attributes: attrs}
}

// TenantID returns the owning tenant.
func (r Record) TenantID() string { return r.tenantID }

// RecordID returns the record identifier, also the engine document id.
func (r Record) RecordID() string { return r.recordID }

// CreatedAt returns the creation time, nil when absent.
func (r Record) CreatedAt() *time.Time { return r.createdAt }

// Attributes returns the business attributes.
func (r Record) Attributes() Attributes { return r.attributes }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRecord, fmt.Sprintf(format, args...))
}

func requiredID(img map[string]any, key string) (string, error) {
	raw, ok := img[key]
	if !ok || raw == nil {
		return "", invalid("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalid("%s must be a string, got %T", key, raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", invalid("%s is required", key)
	}
	if len(s) > 256 {
		return "", invalid("%s too long (max 256)", key)
	}
	if !idRegex.MatchString(s) {
		return "", invalid("%s %q has invalid characters", key, s)
	}
	return s, nil
}

func parseAttributes(img map[string]any) (Attributes, error) {
	var a Attributes
	var err error

	strFields := []struct {
		key string
		dst *string
	}{
		{KeyName, &a.Name},
		{KeyDescription, &a.Description},
		{KeyLevel, &a.Level},
		{KeyInstructor, &a.Instructor},
		{KeyCategory, &a.Category},
		{KeyStatus, &a.Status},
	}
	for _, f := range strFields {
		if *f.dst, err = optionalString(img, f.key); err != nil {
			return Attributes{}, err
		}
	}

	if a.DurationHours, err = optionalNumber(img, KeyDurationHours); err != nil {
		return Attributes{}, err
	}
	if a.Price, err = optionalNumber(img, KeyPrice); err != nil {
		return Attributes{}, err
	}
	if a.Published, err = optionalBool(img, KeyPublished); err != nil {
		return Attributes{}, err
	}
	if a.ModifiedAt, err = optionalTime(img, KeyModifiedAt); err != nil {
		return Attributes{}, err
	}

	switch tags := img[KeyTags].(type) {
	case nil:
	case []any:
		a.Tags = tags
	case string:
		a.Tags = []any{tags}
	default:
		return Attributes{}, invalid("%s must be a list, got %T", KeyTags, tags)
	}

	if a.Extra, err = parseExtra(img); err != nil {
		return Attributes{}, err
	}
	return a, nil
}

var knownKeys = map[string]bool{
	KeyTenantID: true, KeyRecordID: true, KeyCreatedAt: true,
	KeyName: true, KeyDescription: true, KeyLevel: true, KeyDurationHours: true,
	KeyPrice: true, KeyPublished: true, KeyTags: true, KeyInstructor: true,
	KeyCategory: true, KeyStatus: true, KeyModifiedAt: true,
	// legacy field, the stage comes from provenance only
	"stage": true,
}

func parseExtra(img map[string]any) (map[string]any, error) {
	var keys []string
	for k := range img {
		if !knownKeys[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) > MaxExtra {
		return nil, invalid("too many extension attributes (%d, max %d)", len(keys), MaxExtra)
	}
	sort.Strings(keys)

	extra := make(map[string]any, len(keys))
	for _, k := range keys {
		if !keyRegex.MatchString(k) {
			return nil, invalid("extension attribute name %q is invalid", k)
		}
		switch v := img[k].(type) {
		case nil:
			continue
		case string, bool, int64, float64:
			extra[k] = v
		default:
			return nil, invalid("extension attribute %s must be a scalar, got %T", k, v)
		}
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}

func optionalString(img map[string]any, key string) (string, error) {
	switch v := img[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", invalid("%s must be a string, got %T", key, v)
	}
}

func optionalNumber(img map[string]any, key string) (*float64, error) {
	var f float64
	switch v := img[key].(type) {
	case nil:
		return nil, nil
	case int64:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil, invalid("%s must be a number, got %T", key, v)
	}
	if f < 0 {
		return nil, invalid("%s must not be negative", key)
	}
	return &f, nil
}

func optionalBool(img map[string]any, key string) (*bool, error) {
	switch v := img[key].(type) {
	case nil:
		return nil, nil
	case bool:
		return &v, nil
	default:
		return nil, invalid("%s must be a boolean, got %T", key, v)
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func optionalTime(img map[string]any, key string) (*time.Time, error) {
	switch v := img[key].(type) {
	case nil:
		return nil, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				ts = ts.UTC()
				return &ts, nil
			}
		}
		return nil, invalid("%s %q is not an ISO-8601 timestamp", key, v)
	case int64:
		// epoch milliseconds
		ts := time.UnixMilli(v).UTC()
		return &ts, nil
	default:
		return nil, invalid("%s must be a timestamp, got %T", key, v)
	}
}
