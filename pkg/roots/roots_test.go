package roots_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
)

func TestGetAttrRejectsUnlisted(t *testing.T) {
	spec := &roots.RootSpec{
		Name:      "math",
		Target:    map[string]any{"pi": 3.14},
		AllowTree: map[string]any{"pi": map[string]any{"value": true}},
	}
	p := roots.NewProxy(spec)
	_, err := p.GetAttr("cos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "math.cos is not allowed")
}

func TestGetAttrFreezesValueLeaf(t *testing.T) {
	spec := &roots.RootSpec{
		Name:      "math",
		Target:    map[string]any{"pi": 3.14},
		AllowTree: map[string]any{"pi": map[string]any{"value": true}},
	}
	p := roots.NewProxy(spec)
	v, err := p.GetAttr("pi")
	require.NoError(t, err)
	assert.Equal(t, 3.14, v)
}

func TestGetAttrReturnsNestedProxy(t *testing.T) {
	spec := &roots.RootSpec{
		Name: "svc",
		Target: map[string]any{
			"sub": map[string]any{"x": 1},
		},
		AllowTree: map[string]any{
			"sub": map[string]any{"x": map[string]any{"value": true}},
		},
	}
	p := roots.NewProxy(spec)
	v, err := p.GetAttr("sub")
	require.NoError(t, err)
	sub, ok := v.(*roots.Proxy)
	require.True(t, ok)
	x, err := sub.GetAttr("x")
	require.NoError(t, err)
	assert.Equal(t, 1, x)
}

func TestGetAttrWrapsCallableAndFreezesReturn(t *testing.T) {
	called := false
	spec := &roots.RootSpec{
		Name: "svc",
		Target: map[string]any{
			"greet": roots.Func(func(args []any, kwargs map[string]any) (any, error) {
				called = true
				return map[string]any{"msg": "hi"}, nil
			}),
		},
		AllowTree: map[string]any{"greet": true},
	}
	p := roots.NewProxy(spec)
	v, err := p.GetAttr("greet")
	require.NoError(t, err)
	fn, ok := v.(roots.Func)
	require.True(t, ok)
	ret, err := fn(nil, nil)
	require.NoError(t, err)
	assert.True(t, called)
	_, ok = ret.(freeze.FrozenMap)
	assert.True(t, ok)
}

func TestGetAttrRejectsNonCallableTruthyLeaf(t *testing.T) {
	spec := &roots.RootSpec{
		Name:      "svc",
		Target:    map[string]any{"count": 5},
		AllowTree: map[string]any{"count": true},
	}
	p := roots.NewProxy(spec)
	_, err := p.GetAttr("count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not callable")
}
