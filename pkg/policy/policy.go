// Package policy defines the declarative, immutable allowlists and numeric
// limits that govern one sandbox execution.
package policy

import "sort"

// DeterminismConfig controls seeded-PRNG redirection and a fake monotonic
// clock inside the worker.
type DeterminismConfig struct {
	Seed        int64
	FakeTime    *float64
	TimeStep    float64
	FloatFormat string // empty means unset
}

// OSSandboxConfig controls the worker's OS-level confinement step.
type OSSandboxConfig struct {
	SeccompProfile  string // JSON document; empty means none
	SeccompEnforce  bool
	NoNetwork       bool
	FSMode          string // "none" | "tmp" | "ro"
	FSEnforce       bool
	FSChroot        bool
	TmpDir          string
}

// Policy is the immutable, serializable contract a worker enforces for one
// execution. Construct via Default (or a builder) and never mutate a shared
// value in place — Clone returns an independent copy to modify.
type Policy struct {
	BuiltinAllowlist  map[string]struct{}
	CallNameAllowlist map[string]struct{}
	AttrAllowlist     map[string]map[string]struct{}

	AllowDef           bool
	AllowLambda        bool
	AllowClass         bool
	AllowTry           bool
	AllowWith          bool
	AllowLoops         bool
	AllowComprehension bool
	AllowSubscript     bool

	AllowDunderNames map[string]struct{}

	RestrictLoopIterables bool
	LoopIterAllowlist     map[string]struct{}
	AllowLoopIterLiterals bool
	AllowLoopIterNames    bool

	MaxASTNodes        int
	MaxLoopNesting      int
	MaxCompNesting      int
	MaxLiteralElems     int
	MaxConstAllocElems  int

	TimeoutMs int
	MaxSteps  int

	MaxStdoutBytes int
	MaxStderrBytes int

	MaxMemoryMB   int
	MaxCPUSeconds int
	MaxOpenFiles  int
	MaxRecursion  int

	Determinism *DeterminismConfig

	InputSchema  any
	OutputSchema any

	OSSandbox *OSSandboxConfig
}

// StringSet builds a map-backed set from a slice, the in-memory
// representation AttrAllowlist/CallNameAllowlist/BuiltinAllowlist use.
func StringSet(items ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// SortedKeys returns the members of a string set in sorted order, the form
// used by the wire policy encoding (§4.G: "sets as sorted sequences").
func SortedKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func cloneSet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Clone returns a deep copy so callers can derive variants without
// mutating a shared Policy value.
func (p *Policy) Clone() *Policy {
	cp := *p
	cp.BuiltinAllowlist = cloneSet(p.BuiltinAllowlist)
	cp.CallNameAllowlist = cloneSet(p.CallNameAllowlist)
	cp.AttrAllowlist = make(map[string]map[string]struct{}, len(p.AttrAllowlist))
	for root, leaves := range p.AttrAllowlist {
		cp.AttrAllowlist[root] = cloneSet(leaves)
	}
	cp.AllowDunderNames = cloneSet(p.AllowDunderNames)
	cp.LoopIterAllowlist = cloneSet(p.LoopIterAllowlist)
	if p.Determinism != nil {
		d := *p.Determinism
		cp.Determinism = &d
	}
	if p.OSSandbox != nil {
		o := *p.OSSandbox
		cp.OSSandbox = &o
	}
	return &cp
}

var safeBuiltins = []string{
	"None", "True", "False",
	"abs", "all", "any", "bool",
	"dict", "enumerate", "float", "int", "len", "list",
	"max", "min", "range", "reversed", "round", "set", "sorted",
	"str", "sum", "tuple", "zip",
	"print",
}

// Default returns the baseline permissive-but-conservative policy: a safe
// builtin set usable both as globals and as bare-name callables, no root or
// capability access, syntax restricted to expressions/loops/comprehensions,
// and the numeric limits carried from the original default_policy_v05.
func Default() *Policy {
	builtins := StringSet(safeBuiltins...)
	return &Policy{
		BuiltinAllowlist:  builtins,
		CallNameAllowlist: cloneSet(builtins),
		AttrAllowlist:     map[string]map[string]struct{}{},

		AllowDef:           false,
		AllowLambda:        false,
		AllowClass:         false,
		AllowTry:           false,
		AllowWith:          false,
		AllowLoops:         true,
		AllowComprehension: true,
		AllowSubscript:     true,

		AllowDunderNames: StringSet("__result__", "__events__", "__stats__"),

		RestrictLoopIterables: true,
		LoopIterAllowlist:     StringSet("range", "list", "tuple"),
		AllowLoopIterLiterals: true,
		AllowLoopIterNames:    true,

		MaxASTNodes:       7000,
		MaxLoopNesting:     3,
		MaxCompNesting:     3,
		MaxLiteralElems:    100_000,
		MaxConstAllocElems: 1_000_000,

		TimeoutMs: 800,
		MaxSteps:  120_000,

		MaxStdoutBytes: 32_000,
		MaxStderrBytes: 32_000,

		MaxMemoryMB:   256,
		MaxCPUSeconds: 1,
		MaxOpenFiles:  32,
		MaxRecursion:  300,
	}
}

// DefaultV05 is the original baseline: no os_sandbox.
func DefaultV05() *Policy { return Default() }

// DefaultV06 through DefaultV09 alias DefaultV05 unchanged, matching the
// original source's alias chain (each version simply called the prior one).
func DefaultV06() *Policy { return DefaultV05() }
func DefaultV07() *Policy { return DefaultV06() }
func DefaultV08() *Policy { return DefaultV07() }
func DefaultV09() *Policy { return DefaultV08() }

// DefaultV10 adds an OSSandboxConfig with FSMode "tmp" and NoNetwork true
// (all other fields zero), matching the original's v10 bump.
func DefaultV10() *Policy {
	p := DefaultV09()
	p.OSSandbox = &OSSandboxConfig{
		NoNetwork: true,
		FSMode:    "tmp",
	}
	return p
}

func DefaultV11() *Policy { return DefaultV10() }
func DefaultV12() *Policy { return DefaultV11() }
func DefaultV13() *Policy { return DefaultV12() }
func DefaultV14() *Policy { return DefaultV13() }
