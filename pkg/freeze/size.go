package freeze

import "reflect"

// ApproxBytes is a rough, bounded size estimate used for capability
// bytes_in/bytes_out budgeting (§4.E) — not an exact serialized byte count.
func ApproxBytes(x any) int {
	defer func() { recover() }()
	return approxSize(x, 0, 0, map[uintptr]bool{})
}

const (
	approxMaxDepth = 6
	approxMaxItems = 10000
	approxMaxStr   = 100000
)

func approxSize(x any, depth, count int, seen map[uintptr]bool) int {
	if depth > approxMaxDepth || count > approxMaxItems {
		return 0
	}
	switch v := x.(type) {
	case nil:
		return 8
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		_ = v
		return 8
	case string:
		if len(v) > approxMaxStr {
			return approxMaxStr
		}
		return len(v)
	case []byte:
		return len(v)
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return 0
		}
		if seen[rv.Pointer()] {
			return 0
		}
		seen[rv.Pointer()] = true
		total := 0
		iter := rv.MapRange()
		n := 0
		for iter.Next() && n < approxMaxItems {
			total += approxSize(iter.Key().Interface(), depth+1, count+n, seen)
			total += approxSize(iter.Value().Interface(), depth+1, count+n, seen)
			n++
		}
		return total
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return 0
		}
		if rv.Kind() == reflect.Slice && rv.Len() > 0 {
			if seen[rv.Pointer()] {
				return 0
			}
			seen[rv.Pointer()] = true
		}
		total := 0
		n := rv.Len()
		if n > approxMaxItems {
			n = approxMaxItems
		}
		for i := 0; i < n; i++ {
			total += approxSize(rv.Index(i).Interface(), depth+1, count+i, seen)
		}
		return total
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return 0
		}
		return approxSize(rv.Elem().Interface(), depth, count, seen)
	}
	return 256
}
