package evaluator

import (
	"fmt"

	"context"

	"github.com/sandboxkernel/sandboxkernel/pkg/langast"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

func evalExpr(ctx context.Context, expr langast.Expr, env *Env, steps StepCounter) (any, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	switch n := expr.(type) {
	case *langast.Name:
		v, ok := env.lookup(n.Id)
		if !ok {
			return nil, sandboxerr.New(fmt.Sprintf("name '%s' is not defined", n.Id))
		}
		return v, nil

	case *langast.Constant:
		return constantValue(n), nil

	case *langast.UnaryOp:
		v, err := evalExpr(ctx, n.X, env, steps)
		if err != nil {
			return nil, err
		}
		return applyUnaryOp(n.Op, v)

	case *langast.BinOp:
		l, err := evalExpr(ctx, n.Left, env, steps)
		if err != nil {
			return nil, err
		}
		r, err := evalExpr(ctx, n.Right, env, steps)
		if err != nil {
			return nil, err
		}
		return applyBinOp(n.Op, l, r)

	case *langast.BoolOp:
		return evalBoolOp(ctx, n, env, steps)

	case *langast.Compare:
		return evalCompare(ctx, n, env, steps)

	case *langast.Call:
		return evalCall(ctx, n, env, steps)

	case *langast.Attribute:
		v, err := evalExpr(ctx, n.Value, env, steps)
		if err != nil {
			return nil, err
		}
		p, ok := v.(*roots.Proxy)
		if !ok {
			return nil, sandboxerr.New("attribute access is only supported on root proxies")
		}
		attr, err := p.GetAttr(n.Attr)
		if err != nil {
			return nil, err
		}
		return thaw(attr), nil

	case *langast.Subscript:
		return evalSubscript(ctx, n, env, steps)

	case *langast.List:
		return evalExprList(ctx, n.Elts, env, steps)
	case *langast.Tuple:
		return evalExprList(ctx, n.Elts, env, steps)
	case *langast.Set:
		return evalSet(ctx, n.Elts, env, steps)
	case *langast.Dict:
		return evalDict(ctx, n.Entries, env, steps)

	case *langast.IfExp:
		test, err := evalExpr(ctx, n.Test, env, steps)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return evalExpr(ctx, n.Body, env, steps)
		}
		return evalExpr(ctx, n.Orelse, env, steps)

	case *langast.ListComp:
		return evalListComp(ctx, n.Elt, n.Generators, env, steps)
	case *langast.SetComp:
		return evalListComp(ctx, n.Elt, n.Generators, env, steps)
	case *langast.GeneratorExp:
		return evalListComp(ctx, n.Elt, n.Generators, env, steps)
	case *langast.DictComp:
		return evalDictComp(ctx, n, env, steps)

	case *langast.Lambda:
		return "<lambda>", nil

	default:
		return nil, sandboxerr.New(fmt.Sprintf("evaluator: unsupported expression %T", expr))
	}
}

func constantValue(c *langast.Constant) any {
	switch c.CKind {
	case langast.ConstNone:
		return nil
	case langast.ConstBool:
		return c.Bool
	case langast.ConstInt:
		return c.Int
	case langast.ConstFloat:
		return c.Float
	case langast.ConstString:
		return c.Str
	}
	return nil
}

func evalExprList(ctx context.Context, elts []langast.Expr, env *Env, steps StepCounter) ([]any, error) {
	out := make([]any, 0, len(elts))
	for _, e := range elts {
		v, err := evalExpr(ctx, e, env, steps)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func evalSet(ctx context.Context, elts []langast.Expr, env *Env, steps StepCounter) ([]any, error) {
	vals, err := evalExprList(ctx, elts, env, steps)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(vals))
	for _, v := range vals {
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

func evalDict(ctx context.Context, entries []langast.DictEntry, env *Env, steps StepCounter) (map[string]any, error) {
	out := map[string]any{}
	for _, e := range entries {
		k, err := evalExpr(ctx, e.Key, env, steps)
		if err != nil {
			return nil, err
		}
		key, ok := k.(string)
		if !ok {
			return nil, sandboxerr.New("dict keys must be strings")
		}
		v, err := evalExpr(ctx, e.Value, env, steps)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func evalSubscript(ctx context.Context, n *langast.Subscript, env *Env, steps StepCounter) (any, error) {
	container, err := evalExpr(ctx, n.Value, env, steps)
	if err != nil {
		return nil, err
	}
	idx, err := evalExpr(ctx, n.Index, env, steps)
	if err != nil {
		return nil, err
	}
	switch c := container.(type) {
	case []any:
		i, err := asIndex(idx, len(c))
		if err != nil {
			return nil, err
		}
		return c[i], nil
	case string:
		i, err := asIndex(idx, len(c))
		if err != nil {
			return nil, err
		}
		return string(c[i]), nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, sandboxerr.New("dict keys must be strings")
		}
		v, ok := c[key]
		if !ok {
			return nil, sandboxerr.New(fmt.Sprintf("key %q not found", key))
		}
		return v, nil
	default:
		return nil, sandboxerr.New("value is not subscriptable")
	}
}

func asIndex(idx any, length int) (int, error) {
	i, ok := toInt(idx)
	if !ok {
		return 0, sandboxerr.New("index must be an integer")
	}
	n := int(i)
	if n < 0 {
		n += length
	}
	if n < 0 || n >= length {
		return 0, sandboxerr.New("index out of range")
	}
	return n, nil
}

func evalBoolOp(ctx context.Context, n *langast.BoolOp, env *Env, steps StepCounter) (any, error) {
	var last any
	for _, v := range n.Values {
		val, err := evalExpr(ctx, v, env, steps)
		if err != nil {
			return nil, err
		}
		last = val
		if n.Op == "or" && truthy(val) {
			return val, nil
		}
		if n.Op == "and" && !truthy(val) {
			return val, nil
		}
	}
	return last, nil
}

func evalCompare(ctx context.Context, n *langast.Compare, env *Env, steps StepCounter) (any, error) {
	left, err := evalExpr(ctx, n.Left, env, steps)
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := evalExpr(ctx, n.Comparators[i], env, steps)
		if err != nil {
			return nil, err
		}
		ok, err := applyCompare(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func evalCall(ctx context.Context, n *langast.Call, env *Env, steps StepCounter) (any, error) {
	if err := steps.Step(); err != nil {
		return nil, err
	}
	args, err := evalExprList(ctx, n.Args, env, steps)
	if err != nil {
		return nil, err
	}
	kwargs, err := evalKwargs(ctx, n.Kwargs, env, steps)
	if err != nil {
		return nil, err
	}

	switch fn := n.Func.(type) {
	case *langast.Name:
		v, ok := env.lookup(fn.Id)
		if !ok {
			return nil, sandboxerr.New(fmt.Sprintf("name '%s' is not defined", fn.Id))
		}
		return invoke(v, args, kwargs)
	case *langast.Attribute:
		target, err := evalExpr(ctx, fn.Value, env, steps)
		if err != nil {
			return nil, err
		}
		p, ok := target.(*roots.Proxy)
		if !ok {
			return nil, sandboxerr.New("method calls are only supported on root proxies")
		}
		v, err := p.GetAttr(fn.Attr)
		if err != nil {
			return nil, err
		}
		return invoke(v, args, kwargs)
	default:
		return nil, sandboxerr.New("unsupported call target")
	}
}

// evalKwargs evaluates a Call's keyword arguments in map iteration order
// (Kwargs is a map, so that order is unspecified); nil (not an empty map)
// when the call site passed none, so
// callables can tell "no kwargs" from "kwargs present but empty" the same
// way approx_bytes treats a nil argument.
func evalKwargs(ctx context.Context, exprs map[string]langast.Expr, env *Env, steps StepCounter) (map[string]any, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(exprs))
	for k, e := range exprs {
		v, err := evalExpr(ctx, e, env, steps)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func invoke(v any, args []any, kwargs map[string]any) (any, error) {
	var ret any
	var err error
	switch fn := v.(type) {
	case roots.Func:
		ret, err = fn(args, kwargs)
	case func(args []any, kwargs map[string]any) (any, error):
		ret, err = fn(args, kwargs)
	default:
		return nil, sandboxerr.New("value is not callable")
	}
	if err != nil {
		return nil, err
	}
	return thaw(ret), nil
}

func evalListComp(ctx context.Context, elt langast.Expr, gens []langast.Comprehension, env *Env, steps StepCounter) ([]any, error) {
	var out []any
	err := walkGenerators(ctx, gens, 0, env, steps, func() error {
		v, err := evalExpr(ctx, elt, env, steps)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func evalDictComp(ctx context.Context, n *langast.DictComp, env *Env, steps StepCounter) (map[string]any, error) {
	out := map[string]any{}
	err := walkGenerators(ctx, n.Generators, 0, env, steps, func() error {
		k, err := evalExpr(ctx, n.Key, env, steps)
		if err != nil {
			return err
		}
		key, ok := k.(string)
		if !ok {
			return sandboxerr.New("dict keys must be strings")
		}
		v, err := evalExpr(ctx, n.Value, env, steps)
		if err != nil {
			return err
		}
		out[key] = v
		return nil
	})
	return out, err
}

// walkGenerators recursively drives a comprehension's `for ... in ... if
// ...` clauses, invoking body once per combination that passes every `if`.
func walkGenerators(ctx context.Context, gens []langast.Comprehension, i int, env *Env, steps StepCounter, body func() error) error {
	if i >= len(gens) {
		return body()
	}
	gen := gens[i]
	iterVal, err := evalExpr(ctx, gen.Iter, env, steps)
	if err != nil {
		return err
	}
	items, err := iterate(iterVal)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := steps.Step(); err != nil {
			return err
		}
		if err := assignTo(ctx, gen.Target, item, env, steps); err != nil {
			return err
		}
		ok := true
		for _, cond := range gen.Ifs {
			v, err := evalExpr(ctx, cond, env, steps)
			if err != nil {
				return err
			}
			if !truthy(v) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		if err := walkGenerators(ctx, gens, i+1, env, steps, body); err != nil {
			return err
		}
	}
	return nil
}
