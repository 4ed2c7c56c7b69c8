package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
)

func basePolicy() *policy.Policy {
	p := policy.Default()
	p.MaxSteps = 10_000
	p.MaxASTNodes = 10_000
	p.AllowLoops = true
	p.TimeoutMs = 2_000
	return p
}

func TestInlineExecuteRunsProgramInProcess(t *testing.T) {
	req := LiveRequest{
		Code:   "x = 1 + 2\n",
		Policy: basePolicy(),
	}
	out, err := NewInline().Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int64(3), out.Locals["x"])
}

func TestInlineExecuteRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := LiveRequest{Code: "x = 1\n", Policy: basePolicy()}
	out, err := NewInline().Execute(ctx, req)
	assert.Error(t, err)
	assert.False(t, out.OK)
}

func TestExternalExecuteRejectsLiveCapabilities(t *testing.T) {
	req := LiveRequest{
		Code:   "x = 1\n",
		Policy: basePolicy(),
		CapSpecs: []capabilities.CapabilitySpec{
			{Name: "greet", Call: func(args []any, kwargs map[string]any) (any, error) { return "hi", nil }},
		},
	}
	_, err := NewExternal([]string{"sandboxworker"}).Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestExternalExecuteRequiresCommand(t *testing.T) {
	req := LiveRequest{Code: "x = 1\n", Policy: basePolicy()}
	_, err := (&External{}).Execute(context.Background(), req)
	assert.Error(t, err)
}

func TestRegistryResolveCapabilityUnknownFuncPath(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.ResolveCapability(CapSpecWire{Name: "greet", FuncPath: "demo.greet"})
	assert.Error(t, err)
}

func TestRegistryResolveCapabilityAppliesWireOverrides(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCapability("demo.greet", func() capabilities.CapabilitySpec {
		return capabilities.CapabilitySpec{
			Name: "greet",
			Call: func(args []any, kwargs map[string]any) (any, error) { return "hi", nil },
		}
	})
	spec, err := reg.ResolveCapability(CapSpecWire{Name: "greet", FuncPath: "demo.greet", TokensPerCall: 5})
	require.NoError(t, err)
	assert.Equal(t, "greet", spec.Name)
	assert.Equal(t, int64(5), spec.TokensPerCall)
}
