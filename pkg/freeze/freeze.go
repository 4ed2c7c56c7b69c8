// Package freeze implements deep-freeze (§4.B): recursive conversion of an
// arbitrary value into a deeply immutable form before it is exposed to
// user code as a sandbox input or a root-proxy return value.
package freeze

import (
	"fmt"
	"reflect"
	"sort"
	"unicode/utf8"
)

// FrozenMap is deep_freeze's FrozenDict: a read-only map. Mutation is
// prevented by convention (no setter methods are exposed on this type,
// mirroring the Python original's "best-effort" guarantee) rather than by
// the type system, since Go has no const-map primitive.
type FrozenMap map[string]any

// Keys returns the map's keys in sorted order, useful for deterministic
// iteration by callers. The reference evaluator does not use it: it thaws a
// FrozenMap into a plain map and iterates its keys in map order.
func (m FrozenMap) Keys() []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// FrozenTuple is deep_freeze's tuple()/frozenset() result: an ordered,
// read-only sequence.
type FrozenTuple []any

const defaultMaxDepth = 30

// DeepFreeze recursively converts x into an immutable form. Depth beyond
// maxDepth (or the package default if maxDepth <= 0) yields the
// "<frozen:depth_limit>" sentinel rather than recursing further.
func DeepFreeze(x any, maxDepth int) any {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return deepFreeze(x, maxDepth, 0)
}

func deepFreeze(x any, maxDepth, depth int) any {
	if depth > maxDepth {
		return "<frozen:depth_limit>"
	}
	if x == nil {
		return nil
	}
	switch v := x.(type) {
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, string:
		return v
	case []byte:
		if utf8.Valid(v) {
			return string(v)
		}
		return replaceInvalidUTF8(v)
	case FrozenMap:
		return v
	case FrozenTuple:
		return v
	case map[string]any:
		out := make(FrozenMap, len(v))
		for k, val := range v {
			out[k] = deepFreeze(val, maxDepth, depth+1)
		}
		return out
	case []any:
		out := make(FrozenTuple, len(v))
		for i, val := range v {
			out[i] = deepFreeze(val, maxDepth, depth+1)
		}
		return out
	}
	return deepFreezeReflect(x, maxDepth, depth)
}

// replaceInvalidUTF8 mirrors Python's bytes.decode("utf-8", errors="replace").
func replaceInvalidUTF8(b []byte) string {
	out := make([]rune, 0, len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		out = append(out, r)
		b = b[size:]
	}
	return string(out)
}

func deepFreezeReflect(x any, maxDepth, depth int) any {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Map:
		out := make(FrozenMap, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = deepFreeze(iter.Value().Interface(), maxDepth, depth+1)
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make(FrozenTuple, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = deepFreeze(rv.Index(i).Interface(), maxDepth, depth+1)
		}
		return out
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return deepFreeze(rv.Elem().Interface(), maxDepth, depth)
	}
	return fmt.Sprintf("<frozen:%s>", typeName(x))
}

func typeName(x any) string {
	t := reflect.TypeOf(x)
	if t == nil {
		return "NoneType"
	}
	return t.Name()
}
