package store

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Query evaluation shared by backends. Neither backend has server-side
// predicates over JSON fields, so both filter and order fetched documents
// here.

// Match reports whether the JSON document satisfies every condition of q.
// Documents that fail to decode never match.
func (q Query) Match(data []byte) bool {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for _, c := range q.Conditions {
		if !c.matches(fields[c.Field]) {
			return false
		}
	}
	return true
}

func (c Condition) matches(got interface{}) bool {
	switch c.Op {
	case OpEqual:
		return valueEqual(got, c.Value)
	case OpContains:
		arr, ok := got.([]interface{})
		if !ok {
			return false
		}
		for _, elem := range arr {
			if valueEqual(elem, c.Value) {
				return true
			}
		}
	}
	return false
}

// valueEqual compares a decoded JSON value against a condition value.
// JSON numbers decode as float64, so numeric condition values are widened
// before comparison.
func valueEqual(got, want interface{}) bool {
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case int:
		g, ok := got.(float64)
		return ok && g == float64(w)
	case int64:
		g, ok := got.(float64)
		return ok && g == float64(w)
	case float64:
		g, ok := got.(float64)
		return ok && g == w
	default:
		return false
	}
}

// Apply filters, orders, and limits docs per q, returning the snapshot a
// backend should deliver. Order within equal sort keys falls back to
// document ID so snapshots are deterministic.
func (q Query) Apply(docs []Document) Snapshot {
	out := make(Snapshot, 0, len(docs))
	for _, d := range docs {
		if q.Match(d.Data) {
			out = append(out, d)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a := fieldString(out[i].Data, q.OrderBy)
			b := fieldString(out[j].Data, q.OrderBy)
			cmp := compareField(a, b)
			if cmp == 0 {
				return out[i].ID < out[j].ID
			}
			if q.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// compareField orders two extracted field values. Timestamps marshal as
// RFC 3339 with trailing fractional zeros stripped, so text comparison would
// invert pairs like 01.5Z vs 01.51Z; values that parse as times are compared
// as times.
func compareField(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		switch {
		case ta.Before(tb):
			return -1
		case tb.Before(ta):
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// fieldString extracts a field as its comparable string form.
func fieldString(data []byte, field string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	raw, ok := fields[field]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Equal reports whether two snapshots carry the same documents in the same
// order. Backends use it to suppress duplicate deliveries.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].ID != other[i].ID || string(s[i].Data) != string(other[i].Data) {
			return false
		}
	}
	return true
}
