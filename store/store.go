// Package store defines the resource store interface and its in-memory implementation.
package store

import (
	"encoding/json"
	"maps"
	"reflect"
	"slices"
	"time"
)

// AnyVersion disables the optimistic concurrency check on Update.
// Versions start at 1, so 0 never matches a stored record.
const AnyVersion uint64 = 0

// Record is one stored resource. Values handed out by a Store are copies;
// mutating them never affects the store.
type Record struct {
	ID        uint64         `json:"id"`
	Version   uint64         `json:"version"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Store is the interface that resource stores implement.
type Store interface {
	// Create validates fields and inserts a new record with version 1.
	Create(fields map[string]any) (Record, error)

	// Get returns the record with the given id.
	Get(id uint64) (Record, error)

	// List returns a snapshot of all records in insertion order.
	List() ([]Record, error)

	// Update merges patch into the record's fields. When expectedVersion is
	// not AnyVersion it must equal the stored version.
	Update(id, expectedVersion uint64, patch map[string]any) (Record, error)

	// Delete removes the record with the given id.
	Delete(id uint64) error

	// Len returns the number of records currently stored.
	Len() int
}

// Policy decides which fields a record is missing.
type Policy interface {
	Missing(fields map[string]any) []string
}

func (r *Record) clone() Record {
	return Record{
		ID:        r.ID,
		Version:   r.Version,
		Fields:    deepCopy(r.Fields),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// deepCopy copies nested maps and slices so no caller shares containers with the store.
// Stored fields only ever hold JSON-shaped values, see normalizeFields.
func deepCopy(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// normalizeFields returns a fresh copy of fields in which every value is a
// JSON shape: nil, a scalar, map[string]any or []any. Other containers such
// as []string, map[string]string or pointers are converted through
// encoding/json, so nothing the caller holds is shared with the store.
func normalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		v, err := normalizeValue(fields[k])
		if err != nil {
			return nil, &InvalidFieldError{Field: k, Err: err}
		}
		out[k] = v
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, json.Number:
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
