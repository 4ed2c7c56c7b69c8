// Package schema implements the bounded, JSON-schema-like validator used
// to check a sandbox run's inputs and result against a caller-supplied
// input_schema/output_schema (§4.H).
package schema

import (
	"fmt"
	"regexp"
)

// Error reports a schema validation failure at a JSON-pointer-ish path.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Path, e.Message) }

func fail(path, msg string) error { return &Error{Path: path, Message: msg} }

// Callable is a user-supplied predicate schema: validation succeeds unless
// it returns an error or false.
type Callable func(value any) (bool, error)

// Validate checks value against schema, which may be nil (no-op), a
// Callable predicate, or a map[string]any JSON-schema subset. path
// defaults to "$" when empty.
func Validate(value any, schema any, path string) error {
	if path == "" {
		path = "$"
	}
	if schema == nil {
		return nil
	}
	if fn, ok := schema.(Callable); ok {
		ok, err := fn(value)
		if err != nil {
			return fail(path, err.Error())
		}
		if !ok {
			return fail(path, "schema callable returned false")
		}
		return nil
	}

	m, ok := schema.(map[string]any)
	if !ok {
		return fail(path, "invalid schema")
	}

	if subs, ok := m["anyOf"].([]any); ok {
		var lastErr error
		for _, sub := range subs {
			if err := Validate(value, sub, path); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr != nil {
			return lastErr
		}
		return fail(path, "anyOf failed")
	}

	if subs, ok := m["oneOf"].([]any); ok {
		matched := 0
		for _, sub := range subs {
			if err := Validate(value, sub, path); err == nil {
				matched++
			}
		}
		if matched != 1 {
			return fail(path, "oneOf failed")
		}
	}

	if subs, ok := m["allOf"].([]any); ok {
		for _, sub := range subs {
			if err := Validate(value, sub, path); err != nil {
				return err
			}
		}
	}

	if enum, ok := m["enum"].([]any); ok {
		if !containsValue(enum, value) {
			return fail(path, "value not in enum")
		}
	}

	switch t := m["type"].(type) {
	case []any:
		var lastErr error
		for _, tt := range t {
			sub := cloneWithType(m, tt)
			if err := Validate(value, sub, path); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr != nil {
			return lastErr
		}
		return fail(path, "type mismatch")
	case string:
		return checkType(value, t, m, path)
	}
	return nil
}

func cloneWithType(m map[string]any, t any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	out["type"] = t
	return out
}

func containsValue(enum []any, value any) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}

func checkType(value any, t string, m map[string]any, path string) error {
	switch t {
	case "null":
		if value != nil {
			return fail(path, "expected null")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fail(path, "expected boolean")
		}
	case "integer":
		n, ok := asNumber(value)
		if !ok || !isIntegral(n) {
			return fail(path, "expected integer")
		}
		return checkNumber(n, m, path)
	case "number":
		n, ok := asNumber(value)
		if !ok {
			return fail(path, "expected number")
		}
		return checkNumber(n, m, path)
	case "string":
		s, ok := value.(string)
		if !ok {
			return fail(path, "expected string")
		}
		return checkString(s, m, path)
	case "array":
		a, ok := value.([]any)
		if !ok {
			return fail(path, "expected array")
		}
		return checkArray(a, m, path)
	case "object":
		o, ok := value.(map[string]any)
		if !ok {
			return fail(path, "expected object")
		}
		return checkObject(o, m, path)
	}
	return nil
}

// asNumber accepts any Go numeric type except bool (mirroring the
// original's explicit bool exclusion from "integer"/"number").
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case bool:
		return 0, false
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func isIntegral(n float64) bool { return n == float64(int64(n)) }

func checkNumber(value float64, m map[string]any, path string) error {
	if min, ok := asNumber(m["minimum"]); ok && value < min {
		return fail(path, "below minimum")
	}
	if max, ok := asNumber(m["maximum"]); ok && value > max {
		return fail(path, "above maximum")
	}
	return nil
}

var (
	emailRe = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)
	uuidRe  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

func checkString(value string, m map[string]any, path string) error {
	if minLen, ok := asNumber(m["minLength"]); ok && float64(len(value)) < minLen {
		return fail(path, "too short")
	}
	if maxLen, ok := asNumber(m["maxLength"]); ok && float64(len(value)) > maxLen {
		return fail(path, "too long")
	}
	if pat, ok := m["pattern"].(string); ok {
		re, err := regexp.Compile(pat)
		if err != nil {
			return fail(path, "invalid pattern")
		}
		if !re.MatchString(value) {
			return fail(path, "pattern mismatch")
		}
	}
	if format, ok := m["format"].(string); ok {
		switch format {
		case "email":
			if !emailRe.MatchString(value) {
				return fail(path, "invalid email")
			}
		case "uuid":
			if !uuidRe.MatchString(value) {
				return fail(path, "invalid uuid")
			}
		}
	}
	return nil
}

func checkArray(value []any, m map[string]any, path string) error {
	if minItems, ok := asNumber(m["minItems"]); ok && float64(len(value)) < minItems {
		return fail(path, "too few items")
	}
	if maxItems, ok := asNumber(m["maxItems"]); ok && float64(len(value)) > maxItems {
		return fail(path, "too many items")
	}
	if items, ok := m["items"]; ok {
		for i, v := range value {
			if err := Validate(v, items, pathJoin(path, fmt.Sprintf("[%d]", i))); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkObject(value map[string]any, m map[string]any, path string) error {
	props, _ := m["properties"].(map[string]any)
	required, _ := m["required"].([]any)
	for _, r := range required {
		name, _ := r.(string)
		if _, ok := value[name]; !ok {
			return fail(pathJoin(path, name), "missing required")
		}
	}
	additional := true
	if a, ok := m["additionalProperties"].(bool); ok {
		additional = a
	}
	for k, v := range value {
		if sub, ok := props[k]; ok {
			if err := Validate(v, sub, pathJoin(path, k)); err != nil {
				return err
			}
		} else if !additional {
			return fail(pathJoin(path, k), "unexpected property")
		}
	}
	return nil
}

func pathJoin(path, part string) string {
	if path == "" {
		return part
	}
	if len(part) > 0 && part[0] == '[' {
		return path + part
	}
	return path + "." + part
}
