package capabilities_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
)

func int64p(n int64) *int64 { return &n }

func TestBudgetManagerRejectsSecondCallOverMaxCalls(t *testing.T) {
	spec := capabilities.BudgetSpec{MaxCalls: int64p(1)}
	mgr := capabilities.NewBudgetManager("add", spec, capabilities.NewScopeBundle(nil, nil), nil)

	require.NoError(t, mgr.Charge(capabilities.CapabilityCost{Calls: 1}))
	err := mgr.Charge(capabilities.CapabilityCost{Calls: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_calls")
}

func TestBudgetManagerChecksOrderMaxCallMsBeforeAccumulate(t *testing.T) {
	maxMs := int64(10)
	spec := capabilities.BudgetSpec{MaxCallMs: &maxMs}
	mgr := capabilities.NewBudgetManager("slow", spec, capabilities.NewScopeBundle(nil, nil), nil)

	err := mgr.Charge(capabilities.CapabilityCost{Calls: 1, Ms: 50})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_call_ms")
	assert.Equal(t, int64(0), mgr.Calls, "a rejected call must not be accumulated into running totals")
}

func TestBudgetManagerRejectsOverMaxRetBytes(t *testing.T) {
	maxBytes := int64(100)
	spec := capabilities.BudgetSpec{MaxRetBytes: &maxBytes}
	mgr := capabilities.NewBudgetManager("big", spec, capabilities.NewScopeBundle(nil, nil), nil)

	err := mgr.Charge(capabilities.CapabilityCost{Calls: 1, BytesOut: 200})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_ret_bytes")
}

func TestBudgetManagerInitializesExecScopeFromMaxTokens(t *testing.T) {
	maxTok := int64(10)
	spec := capabilities.BudgetSpec{MaxTokens: &maxTok}
	scope := capabilities.NewScopeBundle(nil, nil)
	mgr := capabilities.NewBudgetManager("toks", spec, scope, nil)

	require.NoError(t, mgr.Charge(capabilities.CapabilityCost{Calls: 1, Tokens: 4}))
	require.NotNil(t, scope.Exec.Remaining)
	assert.Equal(t, int64(6), *scope.Exec.Remaining)
}

func TestScopeBundleConsumesExecBeforeSessionBeforeTenant(t *testing.T) {
	session := int64(3)
	tenant := int64(0)
	scope := capabilities.NewScopeBundle(&session, &tenant)
	execTotal := int64(0)
	scope.Exec.Total = &execTotal
	execRemaining := int64(0)
	scope.Exec.Remaining = &execRemaining

	require.NoError(t, scope.Consume(2))
	assert.Equal(t, int64(1), *scope.Session.Remaining)

	require.NoError(t, scope.Consume(1))
	assert.Equal(t, int64(0), *scope.Session.Remaining)

	err := scope.Consume(1)
	require.Error(t, err)
}

func TestScopeBundleUnboundedIsNoop(t *testing.T) {
	scope := capabilities.NewScopeBundle(nil, nil)
	require.NoError(t, scope.Consume(1_000_000))
}

func TestBudgetManagerQPSUsesElapsedClock(t *testing.T) {
	maxQPS := 1000.0
	spec := capabilities.BudgetSpec{MaxQPS: &maxQPS}
	start := time.Unix(0, 0)
	now := start
	mgr := capabilities.NewBudgetManager("fast", spec, capabilities.NewScopeBundle(nil, nil), func() time.Time { return now })

	now = start.Add(time.Second)
	require.NoError(t, mgr.Charge(capabilities.CapabilityCost{Calls: 1}))
	now = start.Add(2 * time.Second)
	err := mgr.Charge(capabilities.CapabilityCost{Calls: 10000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_qps")
}
