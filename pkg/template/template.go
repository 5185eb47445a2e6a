// Package template provides {{dotted.path}} substitution against a workflow variable bag.
package template

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Lookup resolves a dotted path such as "order.customer.name" against data.
// Numeric segments index into slices. The second return is false when any segment is missing.
func Lookup(data map[string]any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	var current any = data

	for _, segment := range strings.Split(path, ".") {
		switch value := current.(type) {
		case map[string]any:
			next, ok := value[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(value) {
				return nil, false
			}

			current = value[index]
		default:
			next, ok := lookupReflect(value, segment)
			if !ok {
				return nil, false
			}

			current = next
		}
	}

	return current, true
}

// lookupReflect handles typed maps and slices coming from trigger payloads built in Go.
func lookupReflect(value any, segment string) (any, bool) {
	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}

		item := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !item.IsValid() {
			return nil, false
		}

		return item.Interface(), true
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= rv.Len() {
			return nil, false
		}

		return rv.Index(index).Interface(), true
	default:
		return nil, false
	}
}

// Process replaces every {{path}} token with the resolved value from variables.
// Tokens whose path does not resolve, or resolves to nil, are left exactly as written.
func Process(input string, variables map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholder.ReplaceAllStringFunc(input, func(token string) string {
		path := placeholder.FindStringSubmatch(token)[1]

		value, ok := Lookup(variables, path)
		if !ok || value == nil {
			return token
		}

		return Stringify(value)
	})
}

// Merge overlays extra on top of base without modifying either.
func Merge(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}

	for k, v := range extra {
		merged[k] = v
	}

	return merged
}

// Stringify renders a variable for inclusion in text. Composite values are rendered as JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool, int, int64, int32:
		return fmt.Sprint(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}
