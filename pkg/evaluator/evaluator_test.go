package evaluator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/evaluator"
	"github.com/sandboxkernel/sandboxkernel/pkg/langparser"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
)

type unlimitedSteps struct{ n int }

func (s *unlimitedSteps) Step() error { s.n++; return nil }

func runScenario(t *testing.T, src string, globals map[string]any) map[string]any {
	t.Helper()
	prog, err := langparser.New().Parse(src)
	require.NoError(t, err)
	env := evaluator.NewEnv(globals)
	locals, err := evaluator.New().Eval(context.Background(), prog, env, &unlimitedSteps{})
	require.NoError(t, err)
	return locals
}

func builtinRange() roots.Func {
	return func(args []any, kwargs map[string]any) (any, error) {
		n := int(args[0].(int64))
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, int64(i))
		}
		return out, nil
	}
}

func TestEvalS1LoopAccumulatesSum(t *testing.T) {
	globals := map[string]any{"range": builtinRange()}
	locals := runScenario(t, "s=0\nfor i in range(3):\n    s=s+i\n__result__=s\n", globals)
	assert.Equal(t, int64(3), locals["__result__"])
}

func TestEvalIfElse(t *testing.T) {
	locals := runScenario(t, "x=5\nif x > 3:\n    y=1\nelse:\n    y=2\n", nil)
	assert.Equal(t, int64(1), locals["y"])
}

func TestEvalWhileLoopWithBreak(t *testing.T) {
	locals := runScenario(t, "i=0\nwhile True:\n    i=i+1\n    if i == 3:\n        break\n", nil)
	assert.Equal(t, int64(3), locals["i"])
}

func TestEvalListCompAndIndex(t *testing.T) {
	locals := runScenario(t, "xs=[i*2 for i in [1,2,3]]\nfirst=xs[0]\n", nil)
	assert.Equal(t, []any{int64(2), int64(4), int64(6)}, locals["xs"])
	assert.Equal(t, int64(2), locals["first"])
}

func TestEvalDictLiteralAndAccess(t *testing.T) {
	locals := runScenario(t, "d={\"a\": 1, \"b\": 2}\nv=d[\"a\"]\n", nil)
	assert.Equal(t, int64(1), locals["v"])
}

func TestEvalBoolOpShortCircuits(t *testing.T) {
	locals := runScenario(t, "x = True or False\ny = False and True\n", nil)
	assert.Equal(t, true, locals["x"])
	assert.Equal(t, false, locals["y"])
}

func TestEvalCompareChained(t *testing.T) {
	locals := runScenario(t, "x = 1 < 2 < 3\ny = 1 < 2 < 1\n", nil)
	assert.Equal(t, true, locals["x"])
	assert.Equal(t, false, locals["y"])
}

func TestEvalTupleUnpacking(t *testing.T) {
	locals := runScenario(t, "a, b = 1, 2\n", nil)
	assert.Equal(t, int64(1), locals["a"])
	assert.Equal(t, int64(2), locals["b"])
}

func TestEvalAugAssign(t *testing.T) {
	locals := runScenario(t, "s = 1\ns += 4\n", nil)
	assert.Equal(t, int64(5), locals["s"])
}

func TestEvalRootProxyAttributeAndCall(t *testing.T) {
	spec := &roots.RootSpec{
		Name:      "svc",
		Target:    map[string]any{"greet": roots.Func(func(args []any, kwargs map[string]any) (any, error) { return "hi", nil })},
		AllowTree: map[string]any{"greet": true},
	}
	globals := map[string]any{"svc": roots.NewProxy(spec)}
	locals := runScenario(t, "msg = svc.greet()\n", globals)
	assert.Equal(t, "hi", locals["msg"])
}

func TestEvalStatementStepLimitPropagates(t *testing.T) {
	prog, err := langparser.New().Parse("x = 1\ny = 2\n")
	require.NoError(t, err)
	env := evaluator.NewEnv(nil)
	_, err = evaluator.New().Eval(context.Background(), prog, env, &boomSteps{})
	require.Error(t, err)
}

type boomSteps struct{}

func (boomSteps) Step() error { return assert.AnError }
