package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// MaxDisjunctionValues is the maximum number of values an `in` or `array-contains-any` filter accepts.
// Callers with more values must split them into several queries.
const MaxDisjunctionValues = 10

// Filter operators
const (
	OpEqual            = "=="
	OpIn               = "in"
	OpArrayContains    = "array-contains"
	OpArrayContainsAny = "array-contains-any"
)

// TimestampLayout is the stored form of timestamps. Its fixed width keeps UTC values sortable as strings.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ServerTimestamp is a sentinel value for write payloads; the store replaces it with its own current time.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

type (
	// DocStore is a document database organised in collections of JSON documents.
	// Paths alternate collection and document ids, eg. "comments/c1/reads/u1".
	DocStore interface {
		Query(ctx context.Context, q Query) ([]Document, error)
		Get(ctx context.Context, path string) (Document, error)
		Set(ctx context.Context, path string, data map[string]interface{}, opts ...SetOption) error
		Update(ctx context.Context, path string, data map[string]interface{}) error
		Delete(ctx context.Context, path string) error
	}

	Filter struct {
		Field string
		Op    string
		Value interface{}
	}

	Query struct {
		Collection string
		Filters    []Filter
		OrderBy    string
		Descending bool
		Limit      int
	}

	Document struct {
		ID   string
		Path string
		Data map[string]interface{}
	}

	SetOption func(*SetOptions)

	SetOptions struct {
		Merge bool
	}
)

// MergeAll makes Set merge the given fields into the existing document instead of replacing it.
func MergeAll(o *SetOptions) { o.Merge = true }

func ApplySetOptions(opts []SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func Where(field, op string, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// DataTo decodes the document's data into v, which must be a pointer to a struct with json tags.
// The document ID is exposed under the "id" key.
func (d Document) DataTo(v interface{}) error {
	data := make(map[string]interface{}, len(d.Data)+1)
	for k, val := range d.Data {
		data[k] = val
	}
	if _, ok := data["id"]; !ok {
		data["id"] = d.ID
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Exists reports whether d was loaded from the store.
func (d Document) Exists() bool { return d.Path != "" }

// DocPath joins collection and document ids into a document path.
func DocPath(parts ...string) string { return strings.Join(parts, "/") }

// SplitPath splits a document path into its parent collection path and document id.
func SplitPath(path string) (collection, id string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, p := range parts {
		if p == "" {
			return "", "", ErrInvalidPath
		}
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// ResolveSentinels returns a copy of data with every ServerTimestamp replaced by now.
// Times are stored as UTC strings in TimestampLayout.
func ResolveSentinels(data map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case serverTimestamp:
			out[k] = now.UTC().Format(TimestampLayout)
		case time.Time:
			out[k] = val.UTC().Format(TimestampLayout)
		case map[string]interface{}:
			out[k] = ResolveSentinels(val, now)
		default:
			out[k] = v
		}
	}
	return out
}

// Normalize round-trips data through JSON so every store sees the same value types
// (numbers as float64, slices as []interface{}, ...).
func Normalize(data map[string]interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err = json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckFilters validates operators and membership list sizes.
func CheckFilters(filters []Filter) error {
	for _, f := range filters {
		switch f.Op {
		case OpEqual, OpArrayContains:
		case OpIn, OpArrayContainsAny:
			vals, ok := FilterValues(f.Value)
			if !ok {
				return ErrUnsupportedFilter
			}
			if len(vals) > MaxDisjunctionValues {
				return ErrTooManyValues
			}
		default:
			return ErrUnsupportedFilter
		}
	}
	return nil
}

// FilterValues converts a membership filter value into a slice.
func FilterValues(v interface{}) ([]interface{}, bool) {
	switch vals := v.(type) {
	case []string:
		out := make([]interface{}, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	case []interface{}:
		return vals, true
	default:
		return nil, false
	}
}
