package worker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
	"github.com/sandboxkernel/sandboxkernel/pkg/worker"
)

func basePolicy() *policy.Policy {
	p := policy.Default()
	p.MaxSteps = 10000
	p.MaxASTNodes = 10000
	p.AllowLoops = true
	p.AllowComprehension = true
	p.MaxStdoutBytes = 4096
	p.MaxStderrBytes = 4096
	return p
}

func TestRunS1LoopAccumulatesSum(t *testing.T) {
	out := worker.Run(context.Background(), worker.Input{
		Code:   "s=0\nfor i in range(3):\n    s=s+i\n__result__=s\n",
		Policy: basePolicy(),
	})
	require.True(t, out.OK)
	require.Nil(t, out.Error)
	assert.EqualValues(t, 3, out.Result)
}

func TestRunParseErrorReturnsStagedError(t *testing.T) {
	out := worker.Run(context.Background(), worker.Input{
		Code:   "x = (\n",
		Policy: basePolicy(),
	})
	require.False(t, out.OK)
	require.NotNil(t, out.Error)
	assert.Equal(t, "parse", out.Error.Stage)
}

func TestRunPolicyViolationReturnsStagedError(t *testing.T) {
	p := basePolicy()
	out := worker.Run(context.Background(), worker.Input{
		Code:   "def f():\n    pass\n",
		Policy: p,
	})
	require.False(t, out.OK)
	require.NotNil(t, out.Error)
	assert.Equal(t, "policy", out.Error.Stage)
}

func TestRunStepLimitExceededReturnsRuntimeError(t *testing.T) {
	p := basePolicy()
	p.MaxSteps = 3
	out := worker.Run(context.Background(), worker.Input{
		Code:   "i=0\nwhile i < 100:\n    i=i+1\n",
		Policy: p,
	})
	require.False(t, out.OK)
	require.NotNil(t, out.Error)
	assert.Equal(t, "runtime", out.Error.Stage)
}

func TestRunCapabilityCallChargesBudgetAndEmitsEvent(t *testing.T) {
	p := basePolicy()
	p.CallNameAllowlist["greet"] = struct{}{}
	spec := capabilities.CapabilitySpec{
		Name: "greet",
		Call: roots.Func(func(args []any, kwargs map[string]any) (any, error) { return "hi", nil }),
	}
	out := worker.Run(context.Background(), worker.Input{
		Code:     "msg = greet()\n",
		Policy:   p,
		CapSpecs: []capabilities.CapabilitySpec{spec},
	})
	require.True(t, out.OK)
	assert.Equal(t, "hi", out.Locals["msg"])
	require.Len(t, out.Events, 1)
	assert.Equal(t, "cap", out.Events[0].Type)
	assert.Equal(t, int(1), out.Metrics.CapCalls["greet"])
}

func TestRunInputsAreFrozenIntoLocals(t *testing.T) {
	out := worker.Run(context.Background(), worker.Input{
		Code:   "y = x + 1\n",
		Policy: basePolicy(),
		Inputs: map[string]any{"x": int64(41)},
	})
	require.True(t, out.OK)
	assert.EqualValues(t, 42, out.Locals["y"])
}

func TestRunNonMappingInputsBindsToInputName(t *testing.T) {
	out := worker.Run(context.Background(), worker.Input{
		Code:   "y = input[0] + input[1]\n",
		Policy: basePolicy(),
		Inputs: []any{int64(1), int64(2)},
	})
	require.True(t, out.OK)
	assert.EqualValues(t, 3, out.Locals["y"])
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := worker.Run(ctx, worker.Input{
		Code:   "x = 1\n",
		Policy: basePolicy(),
	})
	require.False(t, out.OK)
}
