package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAliasesAgree(t *testing.T) {
	versions := []func() *Policy{
		DefaultV05, DefaultV06, DefaultV07, DefaultV08, DefaultV09,
	}
	for _, v := range versions {
		p := v()
		assert.Nil(t, p.OSSandbox, "v05-v09 carry no os_sandbox")
		assert.True(t, p.AllowLoops)
		assert.Contains(t, p.CallNameAllowlist, "range")
	}
}

func TestDefaultV10AddsOSSandbox(t *testing.T) {
	for _, v := range []func() *Policy{DefaultV10, DefaultV11, DefaultV12, DefaultV13, DefaultV14} {
		p := v()
		require.NotNil(t, p.OSSandbox)
		assert.Equal(t, "tmp", p.OSSandbox.FSMode)
		assert.True(t, p.OSSandbox.NoNetwork)
	}
}

func TestMergeRootAddsTopLevelKeysOnly(t *testing.T) {
	p := Default()
	p.MergeRoot("math", []string{"sin", "pi"})
	assert.Contains(t, p.AttrAllowlist["math"], "sin")
	assert.Contains(t, p.AttrAllowlist["math"], "pi")

	p.MergeRoot("math", []string{"cos"})
	assert.Len(t, p.AttrAllowlist["math"], 3)
}

func TestMergeCapabilityAddsCallName(t *testing.T) {
	p := Default()
	p.MergeCapability("add")
	assert.Contains(t, p.CallNameAllowlist, "add")
}

func TestCloneIsIndependent(t *testing.T) {
	p := Default()
	cp := p.Clone()
	cp.MergeCapability("zzz")
	assert.NotContains(t, p.CallNameAllowlist, "zzz")
	assert.Contains(t, cp.CallNameAllowlist, "zzz")
}

func TestWireRoundTripSortsSets(t *testing.T) {
	p := Default()
	p.MergeRoot("math", []string{"sin", "pi", "cos"})
	w := p.ToWire()
	assert.Equal(t, []string{"cos", "pi", "sin"}, w.AttrAllowlist["math"])

	back := FromWire(w)
	assert.Equal(t, p.AttrAllowlist["math"], back.AttrAllowlist["math"])
	assert.Equal(t, p.MaxConstAllocElems, back.MaxConstAllocElems)
	assert.Equal(t, p.TimeoutMs, back.TimeoutMs)
}

func TestSortedKeysEmpty(t *testing.T) {
	assert.Equal(t, []string{}, SortedKeys(map[string]struct{}{}))
}
