package models

import (
	"encoding/json"
	"strconv"
)

// Record is a remote object as decoded from the API, keyed by field name.
// It is also used for the keyword values of a write and for filters.
type Record map[string]interface{}

// ID returns the numeric primary key, or 0 when absent.
func (r Record) ID() int {
	return toInt(r["id"])
}

// Int safely extracts an int field.
func (r Record) Int(field string) int {
	return toInt(r[field])
}

// String safely extracts a string field, returning "" if absent or not a string.
func (r Record) String(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// Bool safely extracts a bool field, returning false if absent or not a bool.
func (r Record) Bool(field string) bool {
	if v, ok := r[field].(bool); ok {
		return v
	}
	return false
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// toInt converts the numeric representations found in decoded JSON to int.
func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			return int(f)
		}
		return int(i)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

type unset struct{}

func (unset) String() string { return "<unset>" }

// Unset marks a keyword whose flag was not given. Writes drop it instead of
// sending null.
var Unset interface{} = unset{}

// IsUnset reports whether v is the Unset marker.
func IsUnset(v interface{}) bool {
	_, ok := v.(unset)
	return ok
}
