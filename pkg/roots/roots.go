// Package roots implements the safe root proxy (§4.D): a read-only,
// attribute-tree-gated view over a host object, exposed to user code as
// `name.attr[.attr...]`.
package roots

import (
	"fmt"
	"reflect"

	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
)

// Func is the calling convention for a callable leaf: a host function
// reachable through a proxy, invoked as `root.attr(...)` from user code.
// kwargs is nil when the call site passed no keyword arguments.
type Func func(args []any, kwargs map[string]any) (any, error)

// AttrGetter lets a host object control its own attribute resolution
// instead of being walked via reflection — the Go analogue of Python's
// implicit `getattr(target, item)`.
type AttrGetter interface {
	GetAttr(name string) (any, error)
}

// RootSpec is the immutable descriptor a façade uses to build a Proxy: a
// sandbox-visible name, the host object it exposes, and a recursive
// allow_tree where a leaf `true` marks a callable, a map with `"value":
// true` marks a frozen-value leaf, and any other nested map marks a
// subtree (§3 RootSpec).
type RootSpec struct {
	Name     string
	Target   any
	AllowTree map[string]any
}

// TopLevelKeys returns the allow_tree's top-level keys, the set
// pkg/policy.MergeRoot folds into attr_allowlist (§4.A).
func (s *RootSpec) TopLevelKeys() []string {
	keys := make([]string, 0, len(s.AllowTree))
	for k := range s.AllowTree {
		keys = append(keys, k)
	}
	return keys
}

// Proxy is the read-only view built from a RootSpec, or from a nested
// allow_tree subtree reached by a prior attribute access.
type Proxy struct {
	target any
	allow  map[string]any
	name   string
}

// NewProxy builds the top-level Proxy for a RootSpec.
func NewProxy(s *RootSpec) *Proxy {
	return &Proxy{target: s.Target, allow: s.AllowTree, name: s.Name}
}

// GetAttr resolves `item` against the allow_tree per §4.D's algorithm:
//  1. item ∉ allow_tree → error.
//  2. allow_tree[item] is a map with value=true → freeze.DeepFreeze(target.item).
//  3. allow_tree[item] is a map otherwise → a nested Proxy over target.item.
//  4. allow_tree[item] is a truthy scalar and target.item is callable →
//     a wrapper invoking target.item(...) and freezing the return.
//  5. otherwise → error.
func (p *Proxy) GetAttr(item string) (any, error) {
	spec, ok := p.allow[item]
	if !ok {
		return nil, fmt.Errorf("%s.%s is not allowed", p.name, item)
	}
	v, err := resolveAttr(p.target, item)
	if err != nil {
		return nil, err
	}
	if sub, ok := spec.(map[string]any); ok {
		if truthy(sub["value"]) {
			return freeze.DeepFreeze(v, 0), nil
		}
		return NewProxy(&RootSpec{Name: p.name + "." + item, Target: v, AllowTree: sub}), nil
	}
	if !truthy(spec) {
		return nil, fmt.Errorf("%s.%s is not allowed", p.name, item)
	}
	fn, ok := asFunc(v)
	if !ok {
		return nil, fmt.Errorf("%s.%s is not callable", p.name, item)
	}
	wrapped := Func(func(args []any, kwargs map[string]any) (any, error) {
		ret, err := fn(args, kwargs)
		if err != nil {
			return nil, err
		}
		return freeze.DeepFreeze(ret, 0), nil
	})
	return wrapped, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		return true
	}
}

// resolveAttr fetches `target.item` the way getattr(target, item) does in
// the original: via an explicit AttrGetter hook, a map lookup, or
// reflection over a struct's fields/methods.
func resolveAttr(target any, item string) (any, error) {
	if g, ok := target.(AttrGetter); ok {
		return g.GetAttr(item)
	}
	if m, ok := target.(map[string]any); ok {
		v, ok := m[item]
		if !ok {
			return nil, fmt.Errorf("%s is not present on target", item)
		}
		return v, nil
	}
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if f := rv.FieldByName(item); f.IsValid() {
			return f.Interface(), nil
		}
	}
	mv := reflect.ValueOf(target).MethodByName(item)
	if mv.IsValid() {
		return mv.Interface(), nil
	}
	return nil, fmt.Errorf("%s is not present on target", item)
}

// asFunc normalizes a resolved attribute value into the Func calling
// convention, accepting a Func directly or any reflect-callable function
// value and adapting it with best-effort argument/return marshaling.
// kwargs has no reflect-call equivalent (a plain Go function has no keyword
// parameters) and is dropped on this path.
func asFunc(v any) (Func, bool) {
	if fn, ok := v.(Func); ok {
		return fn, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func {
		return nil, false
	}
	return func(args []any, kwargs map[string]any) (any, error) {
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			if a == nil {
				in[i] = reflect.New(rv.Type().In(i)).Elem()
				continue
			}
			in[i] = reflect.ValueOf(a)
		}
		out := rv.Call(in)
		if len(out) == 0 {
			return nil, nil
		}
		last := out[len(out)-1]
		if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			var err error
			if !last.IsNil() {
				err = last.Interface().(error)
			}
			if len(out) == 1 {
				return nil, err
			}
			return out[0].Interface(), err
		}
		if len(out) == 1 {
			return out[0].Interface(), nil
		}
		vals := make([]any, len(out))
		for i, o := range out {
			vals[i] = o.Interface()
		}
		return vals, nil
	}, true
}
