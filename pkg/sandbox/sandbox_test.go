package sandbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandbox"
	"github.com/sandboxkernel/sandboxkernel/pkg/transport"
)

func basePolicy() *policy.Policy {
	p := policy.Default()
	p.MaxSteps = 10_000
	p.MaxASTNodes = 10_000
	p.AllowLoops = true
	p.TimeoutMs = 2_000
	return p
}

func TestExecuteRunsSimpleProgram(t *testing.T) {
	sb, err := sandbox.New(sandbox.Config{
		Policy:    basePolicy(),
		Transport: transport.NewInline(),
	})
	require.NoError(t, err)

	res, err := sb.Execute(context.Background(), "x = 1 + 2\n", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int64(3), res.Locals["x"])
	assert.NotEmpty(t, res.RunID)
}

func TestExecuteRejectsInputFailingSchema(t *testing.T) {
	p := basePolicy()
	p.InputSchema = map[string]any{"type": "object", "required": []any{"x"}}

	sb, err := sandbox.New(sandbox.Config{Policy: p, Transport: transport.NewInline()})
	require.NoError(t, err)

	res, err := sb.Execute(context.Background(), "y = 1\n", map[string]any{}, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "schema", res.Error.Stage)
}

func TestExecuteRejectsResultFailingOutputSchema(t *testing.T) {
	p := basePolicy()
	p.OutputSchema = map[string]any{"type": "string"}

	sb, err := sandbox.New(sandbox.Config{Policy: p, Transport: transport.NewInline()})
	require.NoError(t, err)

	res, err := sb.Execute(context.Background(), "__result__ = 42\n", nil, nil)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "schema", res.Error.Stage)
}

func TestExecuteMergesCapabilityNameIntoPolicy(t *testing.T) {
	p := basePolicy()
	sb, err := sandbox.New(sandbox.Config{
		Policy: p,
		Capabilities: []capabilities.CapabilitySpec{
			{Name: "greet", Call: func(args []any, kwargs map[string]any) (any, error) { return "hi", nil }},
		},
		Transport: transport.NewInline(),
	})
	require.NoError(t, err)

	res, err := sb.Execute(context.Background(), "msg = greet()\n", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "hi", res.Locals["msg"])
}

// fakeStore is an in-memory tokenstore.Store for testing session/tenant
// balance persistence without a real sqlite or redis backend.
type fakeStore struct {
	balances map[string]int64
}

func newFakeStore() *fakeStore { return &fakeStore{balances: map[string]int64{}} }

func (f *fakeStore) Load(ctx context.Context, key string) (int64, bool, error) {
	v, ok := f.balances[key]
	return v, ok, nil
}

func (f *fakeStore) Save(ctx context.Context, key string, balance int64) error {
	f.balances[key] = balance
	return nil
}

func TestExecutePersistsSessionTokenBalance(t *testing.T) {
	store := newFakeStore()
	store.balances["session-1"] = 10

	p := basePolicy()
	sb, err := sandbox.New(sandbox.Config{
		Policy: p,
		Capabilities: []capabilities.CapabilitySpec{
			{Name: "spend", Call: func(args []any, kwargs map[string]any) (any, error) { return nil, nil }, TokensPerCall: 3},
		},
		Transport:    transport.NewInline(),
		SessionStore: store,
	})
	require.NoError(t, err)

	ctx := sandbox.WithSessionKey(context.Background(), "session-1")
	res, err := sb.Execute(ctx, "spend()\n", nil, nil)
	require.NoError(t, err)
	require.True(t, res.OK)

	assert.Equal(t, int64(7), store.balances["session-1"])
}
