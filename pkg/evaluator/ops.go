package evaluator

import (
	"fmt"
	"math"

	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

// thaw converts a freeze.FrozenMap/freeze.FrozenTuple — the shape any value
// crossing a root-proxy or capability boundary comes back as — into the
// plain map[string]any/[]any the evaluator's dict/list type switches
// recognize. freeze's own "frozen" guarantee is convention-only (no setters
// are exposed), so this loses nothing but the distinct wrapper type.
func thaw(v any) any {
	switch t := v.(type) {
	case freeze.FrozenMap:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = thaw(val)
		}
		return out
	case freeze.FrozenTuple:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = thaw(val)
		}
		return out
	default:
		return v
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) != 0
	case map[string]any:
		return len(t) != 0
	default:
		return true
	}
}

// iterate normalizes a runtime value into the slice of elements a for-loop
// or comprehension walks: lists/tuples/sets as-is, strings as one-rune
// strings, and dicts as their (sorted-absent — insertion order is not
// tracked for map[string]any) keys.
func iterate(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	case map[string]any:
		out := make([]any, 0, len(t))
		for k := range t {
			out = append(out, k)
		}
		return out, nil
	default:
		return nil, sandboxerr.New("value is not iterable")
	}
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func isFloat(v any) bool {
	_, ok := v.(float64)
	return ok
}

func applyUnaryOp(op string, v any) (any, error) {
	switch op {
	case "not":
		return !truthy(v), nil
	case "-":
		if isFloat(v) {
			f, _ := toFloat(v)
			return -f, nil
		}
		if i, ok := toInt(v); ok {
			return -i, nil
		}
	case "+":
		if isFloat(v) {
			f, _ := toFloat(v)
			return f, nil
		}
		if i, ok := toInt(v); ok {
			return i, nil
		}
	}
	return nil, sandboxerr.New(fmt.Sprintf("unsupported unary operator %q", op))
}

func applyBinOp(op string, l, r any) (any, error) {
	if ls, ok := l.(string); ok {
		switch op {
		case "+":
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		case "*":
			if n, ok := toInt(r); ok {
				return repeatString(ls, int(n)), nil
			}
		}
	}
	if ll, ok := l.([]any); ok {
		switch op {
		case "+":
			if rl, ok := r.([]any); ok {
				out := make([]any, 0, len(ll)+len(rl))
				out = append(out, ll...)
				out = append(out, rl...)
				return out, nil
			}
		case "*":
			if n, ok := toInt(r); ok {
				return repeatList(ll, int(n)), nil
			}
		}
	}

	if isFloat(l) || isFloat(r) {
		lf, ok1 := toFloat(l)
		rf, ok2 := toFloat(r)
		if !ok1 || !ok2 {
			return nil, sandboxerr.New(fmt.Sprintf("unsupported operand types for %q", op))
		}
		return floatBinOp(op, lf, rf)
	}

	li, ok1 := toInt(l)
	ri, ok2 := toInt(r)
	if !ok1 || !ok2 {
		return nil, sandboxerr.New(fmt.Sprintf("unsupported operand types for %q", op))
	}
	return intBinOp(op, li, ri)
}

func repeatString(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func repeatList(xs []any, n int) []any {
	if n <= 0 {
		return []any{}
	}
	out := make([]any, 0, len(xs)*n)
	for i := 0; i < n; i++ {
		out = append(out, xs...)
	}
	return out
}

func intBinOp(op string, a, b int64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return nil, sandboxerr.New("division by zero")
		}
		return float64(a) / float64(b), nil
	case "//":
		if b == 0 {
			return nil, sandboxerr.New("division by zero")
		}
		return floorDivInt(a, b), nil
	case "%":
		if b == 0 {
			return nil, sandboxerr.New("modulo by zero")
		}
		m := a % b
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m, nil
	case "**":
		return ipow(a, b), nil
	}
	return nil, sandboxerr.New(fmt.Sprintf("unsupported operator %q", op))
}

func floatBinOp(op string, a, b float64) (any, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		return a / b, nil
	case "//":
		return math.Floor(a / b), nil
	case "%":
		return math.Mod(a, b), nil
	case "**":
		return math.Pow(a, b), nil
	}
	return nil, sandboxerr.New(fmt.Sprintf("unsupported operator %q", op))
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ipow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	var result int64 = 1
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result
}

func applyCompare(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return valuesEqual(l, r), nil
	case "!=":
		return !valuesEqual(l, r), nil
	case "is":
		return valuesEqual(l, r), nil
	case "is not":
		return !valuesEqual(l, r), nil
	case "in":
		return contains(r, l)
	case "not in":
		ok, err := contains(r, l)
		return !ok, err
	}

	lf, ok1 := toFloat(l)
	rf, ok2 := toFloat(r)
	if ok1 && ok2 {
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			switch op {
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			case ">=":
				return ls >= rs, nil
			}
		}
	}
	return false, sandboxerr.New(fmt.Sprintf("unsupported comparison %q", op))
}

func valuesEqual(l, r any) bool {
	lf, ok1 := toFloat(l)
	rf, ok2 := toFloat(r)
	if ok1 && ok2 {
		return lf == rf
	}
	return l == r
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, v := range c {
			if valuesEqual(v, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return false, sandboxerr.New("'in <string>' requires string as left operand")
		}
		return containsSubstring(c, s), nil
	case map[string]any:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	}
	return false, sandboxerr.New("argument is not iterable")
}

func containsSubstring(s, sub string) bool {
	if sub == "" {
		return true
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
