package capabilities_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
)

type recordingSink struct {
	events []map[string]any
}

func (s *recordingSink) EmitCapEvent(tsMs int64, data map[string]any) {
	s.events = append(s.events, data)
}

func TestWrappedCapabilitySucceedsAndFreezesReturn(t *testing.T) {
	spec := capabilities.CapabilitySpec{
		Name: "add",
		Call: func(args []any, kwargs map[string]any) (any, error) {
			a := args[0].(int)
			b := args[1].(int)
			return map[string]any{"sum": a + b}, nil
		},
		Budget: capabilities.DefaultBudgetSpec(),
	}
	sink := &recordingSink{}
	w := capabilities.NewWrappedCapability(spec, capabilities.NewScopeBundle(nil, nil), sink, nil)

	ret, err := w.Func()([]any{1, 2}, nil)
	require.NoError(t, err)
	fm, ok := ret.(freeze.FrozenMap)
	require.True(t, ok)
	assert.Equal(t, 3, fm["sum"])
	require.Len(t, sink.events, 1)
	assert.Equal(t, "add", sink.events[0]["name"])
	assert.Equal(t, true, sink.events[0]["ok"])
}

func TestWrappedCapabilityRejectsSecondCallOverMaxCalls(t *testing.T) {
	one := int64(1)
	spec := capabilities.CapabilitySpec{
		Name:   "add",
		Call:   func(args []any, kwargs map[string]any) (any, error) { return args[0], nil },
		Budget: capabilities.BudgetSpec{MaxCalls: &one},
	}
	w := capabilities.NewWrappedCapability(spec, capabilities.NewScopeBundle(nil, nil), nil, nil)

	_, err := w.Func()([]any{1}, nil)
	require.NoError(t, err)
	_, err = w.Func()([]any{2}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_calls")
}

func TestWrappedCapabilityChargesBudgetEvenOnFailure(t *testing.T) {
	boom := errors.New("boom")
	spec := capabilities.CapabilitySpec{
		Name:   "fails",
		Call:   func(args []any, kwargs map[string]any) (any, error) { return nil, boom },
		Budget: capabilities.DefaultBudgetSpec(),
	}
	sink := &recordingSink{}
	w := capabilities.NewWrappedCapability(spec, capabilities.NewScopeBundle(nil, nil), sink, nil)

	_, err := w.Func()(nil, nil)
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, 1, w.Calls)
	require.Len(t, sink.events, 1)
	assert.Equal(t, false, sink.events[0]["ok"])
	assert.Equal(t, "boom", sink.events[0]["error"])
}

func TestWrappedCapabilityTokensPerCallDrainsExecScope(t *testing.T) {
	spec := capabilities.CapabilitySpec{
		Name:          "add",
		Call:          func(args []any, kwargs map[string]any) (any, error) { return 0, nil },
		Budget:        capabilities.DefaultBudgetSpec(),
		TokensPerCall: 2,
	}
	execBudget := int64(1)
	scope := capabilities.NewScopeBundle(nil, nil)
	scope.Exec = capabilities.NewTokenScope(&execBudget)
	w := capabilities.NewWrappedCapability(spec, scope, nil, nil)

	_, err := w.Func()(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens")
}

func TestRunInitAndRunCloseLifecycle(t *testing.T) {
	var closedOrder []string
	specs := []capabilities.CapabilitySpec{
		{
			Name:     "first",
			InitPath: func() (any, error) { return "first-state", nil },
			ClosePath: func(state any) error {
				closedOrder = append(closedOrder, state.(string))
				return nil
			},
		},
		{
			Name:     "second",
			InitPath: func() (any, error) { return "second-state", nil },
			ClosePath: func(state any) error {
				closedOrder = append(closedOrder, state.(string))
				return nil
			},
		},
	}
	states := make([]any, len(specs))
	for i, s := range specs {
		st, err := capabilities.RunInit(s)
		require.NoError(t, err)
		states[i] = st
	}

	errs := capabilities.RunClose(specs, states)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"second-state", "first-state"}, closedOrder)
}
