// Package template implements the pure placeholder renderer used for node
// configs. Strings are scanned for {{dotted.path}} placeholders resolved
// against a nested map tree; maps and slices are rendered recursively and
// all other values pass through unchanged.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)

// Render renders value against data. It is pure and deterministic: the
// input value is never mutated, rendered containers are fresh copies.
func Render(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return renderString(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Render(item, data)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Render(item, data)
		}
		return out
	default:
		return value
	}
}

// RenderConfig renders a node config map. A nil config renders to an empty
// map so runners never see nil.
func RenderConfig(config map[string]any, data map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	return Render(config, data).(map[string]any)
}

func renderString(s string, data map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		path := placeholderPattern.FindStringSubmatch(m)[1]
		v, ok := Lookup(data, path)
		if !ok || v == nil {
			return ""
		}
		return Stringify(v)
	})
}

// Lookup resolves a dotted path against a nested map tree.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Stringify converts a resolved value to its template string form. Scalars
// use their natural representation; composite values serialize to compact
// JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}
