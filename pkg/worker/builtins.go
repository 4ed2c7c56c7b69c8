package worker

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

// safeBuiltins builds the exact builtin table this run's globals expose,
// filtered to the names policy.BuiltinAllowlist admits, mirroring
// safe_builtins(policy, stdout). print writes through w (the run's stdout
// EventWriter) rather than the process's real stdout.
func safeBuiltins(p *policy.Policy, w io.Writer) map[string]any {
	all := map[string]any{
		"None":  nil,
		"True":  true,
		"False": false,

		"abs":      roots.Func(biAbs),
		"all":      roots.Func(biAll),
		"any":      roots.Func(biAny),
		"bool":     roots.Func(biBool),
		"dict":     roots.Func(biDict),
		"enumerate": roots.Func(biEnumerate),
		"float":    roots.Func(biFloat),
		"int":      roots.Func(biInt),
		"len":      roots.Func(biLen),
		"list":     roots.Func(biList),
		"max":      roots.Func(biMax),
		"min":      roots.Func(biMin),
		"range":    roots.Func(biRange),
		"reversed": roots.Func(biReversed),
		"round":    roots.Func(biRound),
		"set":      roots.Func(biSet),
		"sorted":   roots.Func(biSorted),
		"str":      roots.Func(biStr),
		"sum":      roots.Func(biSum),
		"tuple":    roots.Func(biList),
		"zip":      roots.Func(biZip),
		"print":    roots.Func(makePrint(w)),
	}
	out := map[string]any{}
	for name := range p.BuiltinAllowlist {
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}

func numArg(v any) (float64, bool) {
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

func asSeq(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	default:
		return nil, sandboxerr.New("argument is not iterable")
	}
}

func biAbs(args []any, kwargs map[string]any) (any, error) {
	n, ok := numArg(args[0])
	if !ok {
		return nil, sandboxerr.New("abs() requires a number")
	}
	if _, isInt := args[0].(int64); isInt {
		return int64(math.Abs(n)), nil
	}
	return math.Abs(n), nil
}

func biAll(args []any, kwargs map[string]any) (any, error) {
	seq, err := asSeq(args[0])
	if err != nil {
		return nil, err
	}
	for _, v := range seq {
		if !truthyBI(v) {
			return false, nil
		}
	}
	return true, nil
}

func biAny(args []any, kwargs map[string]any) (any, error) {
	seq, err := asSeq(args[0])
	if err != nil {
		return nil, err
	}
	for _, v := range seq {
		if truthyBI(v) {
			return true, nil
		}
	}
	return false, nil
}

func truthyBI(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
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

func biBool(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return false, nil
	}
	return truthyBI(args[0]), nil
}

func biDict(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, sandboxerr.New("dict() requires a mapping")
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

func biEnumerate(args []any, kwargs map[string]any) (any, error) {
	seq, err := asSeq(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(seq))
	for i, v := range seq {
		out = append(out, []any{int64(i), v})
	}
	return out, nil
}

func biFloat(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return float64(0), nil
	}
	switch t := args[0].(type) {
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, sandboxerr.New(fmt.Sprintf("could not convert string to float: %q", t))
		}
		return f, nil
	case bool:
		if t {
			return float64(1), nil
		}
		return float64(0), nil
	}
	return nil, sandboxerr.New("float() requires a number or string")
}

func biInt(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return int64(0), nil
	}
	switch t := args[0].(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, sandboxerr.New(fmt.Sprintf("invalid literal for int(): %q", t))
		}
		return n, nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, sandboxerr.New("int() requires a number or string")
}

func biLen(args []any, kwargs map[string]any) (any, error) {
	switch t := args[0].(type) {
	case []any:
		return int64(len(t)), nil
	case string:
		return int64(len([]rune(t))), nil
	case map[string]any:
		return int64(len(t)), nil
	}
	return nil, sandboxerr.New("object has no len()")
}

func biList(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	return asSeq(args[0])
}

func biMax(args []any, kwargs map[string]any) (any, error) {
	seq := args
	if len(args) == 1 {
		if s, err := asSeq(args[0]); err == nil {
			seq = s
		}
	}
	if len(seq) == 0 {
		return nil, sandboxerr.New("max() arg is an empty sequence")
	}
	best := seq[0]
	for _, v := range seq[1:] {
		if lessBI(best, v) {
			best = v
		}
	}
	return best, nil
}

func biMin(args []any, kwargs map[string]any) (any, error) {
	seq := args
	if len(args) == 1 {
		if s, err := asSeq(args[0]); err == nil {
			seq = s
		}
	}
	if len(seq) == 0 {
		return nil, sandboxerr.New("min() arg is an empty sequence")
	}
	best := seq[0]
	for _, v := range seq[1:] {
		if lessBI(v, best) {
			best = v
		}
	}
	return best, nil
}

func lessBI(a, b any) bool {
	if af, ok := numArg(a); ok {
		if bf, ok := numArg(b); ok {
			return af < bf
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as < bs
		}
	}
	return false
}

func biRange(args []any, kwargs map[string]any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		n, ok := numArg(args[0])
		if !ok {
			return nil, sandboxerr.New("range() requires integers")
		}
		stop = int64(n)
	case 2:
		s, ok1 := numArg(args[0])
		e, ok2 := numArg(args[1])
		if !ok1 || !ok2 {
			return nil, sandboxerr.New("range() requires integers")
		}
		start, stop = int64(s), int64(e)
	case 3:
		s, ok1 := numArg(args[0])
		e, ok2 := numArg(args[1])
		st, ok3 := numArg(args[2])
		if !ok1 || !ok2 || !ok3 {
			return nil, sandboxerr.New("range() requires integers")
		}
		start, stop, step = int64(s), int64(e), int64(st)
	default:
		return nil, sandboxerr.New("range() expected 1 to 3 arguments")
	}
	if step == 0 {
		return nil, sandboxerr.New("range() arg 3 must not be zero")
	}
	out := []any{}
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func biReversed(args []any, kwargs map[string]any) (any, error) {
	seq, err := asSeq(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(seq))
	for i, v := range seq {
		out[len(seq)-1-i] = v
	}
	return out, nil
}

func biRound(args []any, kwargs map[string]any) (any, error) {
	n, ok := numArg(args[0])
	if !ok {
		return nil, sandboxerr.New("round() requires a number")
	}
	ndigits := kwargs["ndigits"]
	if len(args) >= 2 {
		ndigits = args[1]
	}
	if ndigits != nil {
		nd, ok := numArg(ndigits)
		if !ok {
			return nil, sandboxerr.New("round() ndigits must be an integer")
		}
		mult := math.Pow(10, nd)
		return math.Round(n*mult) / mult, nil
	}
	return int64(math.Round(n)), nil
}

func biSet(args []any, kwargs map[string]any) (any, error) {
	var seq []any
	if len(args) > 0 {
		s, err := asSeq(args[0])
		if err != nil {
			return nil, err
		}
		seq = s
	}
	out := make([]any, 0, len(seq))
	for _, v := range seq {
		dup := false
		for _, existing := range out {
			if existing == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

func biSorted(args []any, kwargs map[string]any) (any, error) {
	seq, err := asSeq(args[0])
	if err != nil {
		return nil, err
	}
	out := make([]any, len(seq))
	copy(out, seq)

	key, _ := kwargs["key"].(roots.Func)
	if key == nil {
		sort.SliceStable(out, func(i, j int) bool { return lessBI(out[i], out[j]) })
		return out, nil
	}

	keys := make([]any, len(out))
	var keyErr error
	for i, v := range out {
		keys[i], keyErr = key([]any{v}, nil)
		if keyErr != nil {
			return nil, keyErr
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return lessBI(keys[i], keys[j]) })
	return out, nil
}

func biStr(args []any, kwargs map[string]any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return reprString(args[0]), nil
}

func reprString(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func biSum(args []any, kwargs map[string]any) (any, error) {
	seq, err := asSeq(args[0])
	if err != nil {
		return nil, err
	}
	var start any = int64(0)
	if len(args) >= 2 {
		start = args[1]
	}
	isFloatAcc := false
	if _, ok := start.(float64); ok {
		isFloatAcc = true
	}
	var fAcc float64
	var iAcc int64
	if isFloatAcc {
		fAcc, _ = numArg(start)
	} else {
		iAcc, _ = start.(int64)
	}
	for _, v := range seq {
		if f, ok := v.(float64); ok {
			isFloatAcc = true
			fAcc += f
			continue
		}
		n, ok := numArg(v)
		if !ok {
			return nil, sandboxerr.New("sum() requires numbers")
		}
		if isFloatAcc {
			fAcc += n
		} else {
			iAcc += int64(n)
		}
	}
	if isFloatAcc {
		return fAcc + float64(iAcc), nil
	}
	return iAcc, nil
}

func biZip(args []any, kwargs map[string]any) (any, error) {
	seqs := make([][]any, len(args))
	minLen := -1
	for i, a := range args {
		s, err := asSeq(a)
		if err != nil {
			return nil, err
		}
		seqs[i] = s
		if minLen == -1 || len(s) < minLen {
			minLen = len(s)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]any, 0, minLen)
	for i := 0; i < minLen; i++ {
		tup := make([]any, len(seqs))
		for j, s := range seqs {
			tup[j] = s[i]
		}
		out = append(out, tup)
	}
	return out, nil
}

func makePrint(w io.Writer) roots.Func {
	return func(args []any, kwargs map[string]any) (any, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = reprString(a)
		}
		line := ""
		for i, p := range parts {
			if i > 0 {
				line += " "
			}
			line += p
		}
		line += "\n"
		_, err := w.Write([]byte(line))
		return nil, err
	}
}
