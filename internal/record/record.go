// Package record defines the read-only view of a row in the watched table
// and the Source interface the engine polls.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the wire form of last-modified timestamps: ISO-8601 UTC
// with millisecond precision and a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Record is a single row fetched from the record store.
// The engine never mutates records.
type Record struct {
	ID           string
	Fields       map[string]any
	LastModified time.Time
}

// Source fetches every record of one table.
type Source interface {
	FetchAll(ctx context.Context) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Record, error)

// FetchAll implements Source.
func (f SourceFunc) FetchAll(ctx context.Context) ([]Record, error) { return f(ctx) }

// Field returns the raw value of a field and whether it is present.
func (r Record) Field(name string) (any, bool) {
	if r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

// FieldString returns the string form of a field. Absent and null fields
// yield the empty string.
func (r Record) FieldString(name string) string {
	v, ok := r.Field(name)
	if !ok {
		return ""
	}
	return Stringify(v)
}

// Stringify renders a field value the way filters compare it: strings as-is,
// numbers in shortest decimal form, bools as true/false, anything else as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// ParseTimestamp parses a last-modified value. RFC 3339 with any fractional
// precision is accepted; the result is in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type wireRecord struct {
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields"`
	LastModified string         `json:"last_modified"`
}

// MarshalJSON renders the record as it is delivered to webhooks.
func (r Record) MarshalJSON() ([]byte, error) {
	fields := r.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return json.Marshal(wireRecord{
		ID:           r.ID,
		Fields:       fields,
		LastModified: FormatTimestamp(r.LastModified),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Fields = w.Fields
	r.LastModified = time.Time{}
	if w.LastModified != "" {
		t, err := ParseTimestamp(w.LastModified)
		if err != nil {
			return err
		}
		r.LastModified = t
	}
	return nil
}
