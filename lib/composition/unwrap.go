package composition

import (
	"math"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// The mixer wraps most leaves as {"value": X} but not consistently, and
// any node may be missing. Every read in this package goes through these
// accessors instead of type-asserting at the call site.

// Value strips a {"value": X} wrapper if present.
func Value(node any) any {
	if m, ok := node.(map[string]any); ok {
		if v, ok := m["value"]; ok {
			return v
		}
	}
	return node
}

// Field walks nested objects by key. Missing or non-object nodes yield nil.
func Field(node any, keys ...string) any {
	cur := node
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

// String unwraps node and returns it when it is a string.
func String(node any) (string, bool) {
	s, ok := Value(node).(string)
	return s, ok
}

// Number unwraps node and returns it when it is numeric. Numeric strings
// are not accepted.
func Number(node any) (float64, bool) {
	switch v := Value(node).(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// List returns node as an array, or nil.
func List(node any) []any {
	l, _ := node.([]any)
	return l
}

// Active reports whether a clip's connected indicator is a truthy
// positive value. Newer firmware reports a choice string instead of a
// number.
func Active(node any) bool {
	switch v := Value(node).(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "connected", "connected & previewing", "previewing":
			return true
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil && n > 0
	}
	n, ok := Number(node)
	return ok && n > 0
}

var placeholderNames = map[string]bool{
	"":          true,
	"—":         true,
	"-":         true,
	"null":      true,
	"undefined": true,
}

// ClipName extracts a display name, reporting false when the slot should
// be treated as empty.
func ClipName(node any) (string, bool) {
	s, ok := String(node)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if placeholderNames[strings.ToLower(s)] {
		return "", false
	}
	return s, true
}
