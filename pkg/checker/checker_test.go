package checker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxkernel/sandboxkernel/pkg/checker"
	"github.com/sandboxkernel/sandboxkernel/pkg/langparser"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

func TestCheckerAllowsSimpleLoop(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("s=0\nfor i in range(3): s=s+i\n__result__=s\n")
	require.NoError(t, err)

	pol := policy.Default()
	err = checker.Check(pol, prog)
	assert.NoError(t, err)
}

func TestCheckerRejectsImport(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("import os\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	require.Error(t, err)
	var se *sandboxerr.SandboxError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "import is not allowed")
}

func TestCheckerRejectsUnlistedDunder(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("__secret__ = 1\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dunder names are not allowed")
}

func TestCheckerAllowsResultDunder(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("__result__ = 1\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	assert.NoError(t, err)
}

func TestCheckerRejectsUnlistedAttribute(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("x = math.sin(1)\n")
	require.NoError(t, err)

	pol := policy.Default()
	pol.CallNameAllowlist["sin"] = struct{}{}
	err = checker.Check(pol, prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attribute 'math.sin' is not allowed")
}

func TestCheckerAllowsAllowlistedAttribute(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("x = math.pi\n")
	require.NoError(t, err)

	pol := policy.Default()
	pol.MergeRoot("math", []string{"pi"})
	err = checker.Check(pol, prog)
	assert.NoError(t, err)
}

func TestCheckerRejectsSuspiciousListRange(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("x = list(range(2000000))\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suspicious constant allocation")
}

func TestCheckerRejectsSuspiciousStringMultiply(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("x = 'a' * 2000000\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suspicious constant allocation")
}

func TestCheckerRejectsPowHugeExponent(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("x = [0] * (2 ** 40)\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suspicious constant allocation")
}

func TestCheckerRejectsDefWhenDisallowed(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("def f():\n    pass\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "def is not allowed")
}

func TestCheckerTracksIterNames(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("xs = range(5)\nfor i in xs:\n    pass\n")
	require.NoError(t, err)

	err = checker.Check(policy.Default(), prog)
	assert.NoError(t, err)
}

func TestCheckerRejectsLoopNestingTooDeep(t *testing.T) {
	p := langparser.New()
	prog, err := p.Parse("for a in range(1):\n for b in range(1):\n  for c in range(1):\n   for d in range(1):\n    pass\n")
	require.NoError(t, err)

	pol := policy.Default()
	pol.MaxLoopNesting = 3
	err = checker.Check(pol, prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop nesting too deep")
}
