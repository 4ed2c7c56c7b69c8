package freeze

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// SerializeOptions bounds SafeSerialize's output, mirroring to_safe_json's
// keyword arguments.
type SerializeOptions struct {
	MaxDepth    int // default 10
	MaxItems    int // default 2000
	MaxStr      int // default 10000
	MaxBytes    int // 0 means unbounded
	FloatFormat string
}

func (o SerializeOptions) withDefaults() SerializeOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 10
	}
	if o.MaxItems <= 0 {
		o.MaxItems = 2000
	}
	if o.MaxStr <= 0 {
		o.MaxStr = 10000
	}
	return o
}

type serializeState struct {
	opts  SerializeOptions
	count int
	bytes int
	seen  map[uintptr]bool
}

// SafeSerialize renders x as a bounded JSON-compatible tree (§4.B): depth,
// item-count, and byte budgets are enforced, cycles are detected via
// reference identity, and the result is idempotent
// (SafeSerialize(SafeSerialize(x)) == SafeSerialize(x)).
func SafeSerialize(x any, opts SerializeOptions) any {
	st := &serializeState{opts: opts.withDefaults(), seen: map[uintptr]bool{}}
	return st.serialize(x, 0)
}

func identity(x any) (uintptr, bool) {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	}
	return 0, false
}

func (st *serializeState) serialize(x any, depth int) any {
	st.count++
	if st.count > st.opts.MaxItems {
		return "<truncated:too_many_items>"
	}
	if depth > st.opts.MaxDepth {
		return "<truncated:depth_limit>"
	}
	if st.opts.MaxBytes > 0 && st.bytes > st.opts.MaxBytes {
		return "<truncated:byte_limit>"
	}

	if ptr, ok := identity(x); ok {
		if st.seen[ptr] {
			return "<truncated:cycle>"
		}
		st.seen[ptr] = true
	}

	switch v := x.(type) {
	case nil:
		return nil
	case bool:
		return v
	case int:
		return v
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return v
	case float32:
		return st.serializeFloat(float64(v))
	case float64:
		return st.serializeFloat(v)
	case string:
		return st.serializeString(v)
	case []byte:
		return st.serializeString(string(v))
	case FrozenMap:
		return st.serializeMapAtDepth(map[string]any(v), depth)
	case map[string]any:
		return st.serializeMapAtDepth(v, depth)
	case FrozenTuple:
		return st.serializeSliceAtDepth([]any(v), depth)
	case []any:
		return st.serializeSliceAtDepth(v, depth)
	}
	return st.serializeReflect(x, depth)
}

func (st *serializeState) serializeFloat(v float64) any {
	if st.opts.FloatFormat != "" {
		vv := v
		if vv == 0.0 && math.Signbit(vv) {
			vv = 0.0
		}
		s := formatFloat(vv, st.opts.FloatFormat)
		st.bytes += len(s)
		return s
	}
	return v
}

// formatFloat applies a small subset of Python format-spec semantics:
// ".Nf" fixed precision is the only form it understands; any other format
// string falls back to the shortest 'g' representation.
func formatFloat(v float64, format string) string {
	prec := -1
	if len(format) >= 2 && format[0] == '.' && format[len(format)-1] == 'f' {
		if n, err := strconv.Atoi(format[1 : len(format)-1]); err == nil {
			prec = n
		}
	}
	if prec >= 0 {
		return strconv.FormatFloat(v, 'f', prec, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (st *serializeState) serializeString(s string) string {
	if len(s) <= st.opts.MaxStr {
		st.bytes += len(s)
		return s
	}
	out := s[:st.opts.MaxStr] + "<truncated>"
	st.bytes += len(out)
	return out
}

func (st *serializeState) serializeReflect(x any, depth int) any {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Map:
		m := map[string]any{}
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return st.serializeMapAtDepth(m, depth)
	case reflect.Slice, reflect.Array:
		xs := make([]any, rv.Len())
		for i := range xs {
			xs[i] = rv.Index(i).Interface()
		}
		return st.serializeSliceAtDepth(xs, depth)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return st.serialize(rv.Elem().Interface(), depth)
	}
	return fmt.Sprintf("<opaque:%s>", typeName(x))
}

func (st *serializeState) serializeSliceAtDepth(xs []any, depth int) []any {
	out := make([]any, 0, len(xs))
	for _, x := range xs {
		out = append(out, st.serialize(x, depth+1))
	}
	return out
}

func (st *serializeState) serializeMapAtDepth(m map[string]any, depth int) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := map[string]any{}
	for i, k := range keys {
		if i >= st.opts.MaxItems {
			break
		}
		out[k] = st.serialize(m[k], depth+1)
	}
	return out
}
