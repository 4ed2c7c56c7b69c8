package freeze_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
)

func TestDeepFreezePassesThroughScalars(t *testing.T) {
	assert.Equal(t, nil, freeze.DeepFreeze(nil, 0))
	assert.Equal(t, true, freeze.DeepFreeze(true, 0))
	assert.Equal(t, 5, freeze.DeepFreeze(5, 0))
	assert.Equal(t, "hi", freeze.DeepFreeze("hi", 0))
}

func TestDeepFreezeMapBecomesFrozenMap(t *testing.T) {
	in := map[string]any{"a": 1, "b": map[string]any{"c": 2}}
	out := freeze.DeepFreeze(in, 0)
	fm, ok := out.(freeze.FrozenMap)
	require.True(t, ok)
	assert.Equal(t, 1, fm["a"])
	inner, ok := fm["b"].(freeze.FrozenMap)
	require.True(t, ok)
	assert.Equal(t, 2, inner["c"])
}

func TestDeepFreezeSliceBecomesTuple(t *testing.T) {
	out := freeze.DeepFreeze([]any{1, 2, 3}, 0)
	tup, ok := out.(freeze.FrozenTuple)
	require.True(t, ok)
	assert.Equal(t, freeze.FrozenTuple{1, 2, 3}, tup)
}

func TestDeepFreezeBytesDecodesUTF8(t *testing.T) {
	out := freeze.DeepFreeze([]byte("hello"), 0)
	assert.Equal(t, "hello", out)
}

func TestDeepFreezeDepthLimit(t *testing.T) {
	out := freeze.DeepFreeze(map[string]any{"a": 1}, -1)
	// maxDepth<=0 resolves to the package default (30), so a single level
	// of nesting never hits the sentinel.
	_, ok := out.(freeze.FrozenMap)
	assert.True(t, ok)
}

type opaqueThing struct{ X int }

func TestDeepFreezeUnknownTypeSentinel(t *testing.T) {
	out := freeze.DeepFreeze(opaqueThing{X: 1}, 0)
	assert.Equal(t, "<frozen:opaqueThing>", out)
}

func TestSafeSerializeRoundTripIdempotent(t *testing.T) {
	in := map[string]any{"a": []any{1, 2, "x"}, "b": 3.5}
	first := freeze.SafeSerialize(in, freeze.SerializeOptions{})
	second := freeze.SafeSerialize(first, freeze.SerializeOptions{})
	assert.Equal(t, first, second)
}

func TestSafeSerializeFreezeThenSerializeMatchesDirect(t *testing.T) {
	in := map[string]any{"a": []any{1, 2}}
	frozen := freeze.DeepFreeze(in, 0)
	viaFreeze := freeze.SafeSerialize(frozen, freeze.SerializeOptions{})
	direct := freeze.SafeSerialize(in, freeze.SerializeOptions{})
	assert.Equal(t, direct, viaFreeze)
}

func TestSafeSerializeTruncatesLongString(t *testing.T) {
	long := make([]byte, 50)
	for i := range long {
		long[i] = 'x'
	}
	out := freeze.SafeSerialize(string(long), freeze.SerializeOptions{MaxStr: 10})
	s, ok := out.(string)
	require.True(t, ok)
	assert.Contains(t, s, "<truncated>")
}

func TestSafeSerializeDetectsCycle(t *testing.T) {
	m := map[string]any{}
	m["self"] = m
	out := freeze.SafeSerialize(m, freeze.SerializeOptions{})
	om, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "<truncated:cycle>", om["self"])
}

func TestSafeSerializeDepthLimit(t *testing.T) {
	out := freeze.SafeSerialize(map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}}, freeze.SerializeOptions{MaxDepth: 1})
	om := out.(map[string]any)
	inner := om["a"].(map[string]any)
	assert.Equal(t, "<truncated:depth_limit>", inner["b"])
}

func TestSafeSerializeItemLimitPreservesLengthAndTruncatesOverBudgetItems(t *testing.T) {
	xs := make([]any, 5)
	for i := range xs {
		xs[i] = i
	}
	out := freeze.SafeSerialize(xs, freeze.SerializeOptions{MaxItems: 2})
	got, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, got, 5)
	assert.Equal(t, 0, got[0])
	assert.Equal(t, "<truncated:too_many_items>", got[1])
	assert.Equal(t, "<truncated:too_many_items>", got[2])
	assert.Equal(t, "<truncated:too_many_items>", got[3])
	assert.Equal(t, "<truncated:too_many_items>", got[4])
}
