package woocommerce

import (
	"fmt"
	"time"
)

// DateFormat is the timestamp layout WooCommerce uses. No zone suffix; the
// *_gmt fields are UTC, the plain ones are store-local.
const DateFormat = "2006-01-02T15:04:05"

// RecordLevel tags how much of a remote record a Record carries
type RecordLevel string

const (
	// RecordSummary means only projected fields came back (a `_fields` list)
	RecordSummary RecordLevel = "summary"
	// RecordFull means the whole resource document came back
	RecordFull RecordLevel = "full"
)

// Record is one remote resource document plus fetch metadata
type Record struct {
	Resource string
	ID       int64
	Level    RecordLevel

	// DateModified is the remote modification timestamp. Its raw string form
	// is what link rows store as the sync hash.
	DateModified    time.Time
	RawDateModified string

	Data map[string]interface{}
}

// ParseRecord builds a Record from a decoded response document
func ParseRecord(resource string, level RecordLevel, data map[string]interface{}) (*Record, error) {
	rec := &Record{
		Resource: resource,
		Level:    level,
		Data:     data,
	}

	id, ok := numericID(data["id"])
	if !ok {
		return nil, fmt.Errorf("%s record has no numeric id", resource)
	}
	rec.ID = id

	// Prefer the GMT timestamp so comparisons don't depend on store timezone
	raw, _ := data["date_modified_gmt"].(string)
	if raw == "" {
		raw, _ = data["date_modified"].(string)
	}
	if raw != "" {
		t, err := time.Parse(DateFormat, raw)
		if err != nil {
			return nil, fmt.Errorf("%s %d has unparseable date_modified %q", resource, id, raw)
		}
		rec.DateModified = t.UTC()
		rec.RawDateModified = raw
	}

	return rec, nil
}

func numericID(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// IsFull reports whether the record carries every field in required. Summary
// records from projected list calls fail this and force a full refetch
// before mapping.
func (r *Record) IsFull(required []string) bool {
	if r.Level == RecordFull {
		return true
	}
	for _, field := range required {
		if _, ok := r.Data[field]; !ok {
			return false
		}
	}
	return true
}

// GetString returns a string field from the record data
func (r *Record) GetString(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// GetBool returns a bool field from the record data
func (r *Record) GetBool(key string) bool {
	b, _ := r.Data[key].(bool)
	return b
}

// GetInt returns a numeric field as int64
func (r *Record) GetInt(key string) int64 {
	n, _ := numericID(r.Data[key])
	return n
}

// GetSlice returns a list field from the record data
func (r *Record) GetSlice(key string) []interface{} {
	s, _ := r.Data[key].([]interface{})
	return s
}

// GetMap returns an object field from the record data
func (r *Record) GetMap(key string) map[string]interface{} {
	m, _ := r.Data[key].(map[string]interface{})
	return m
}
