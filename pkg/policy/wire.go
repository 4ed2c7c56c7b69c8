package policy

// Wire is the JSON-serializable projection of Policy used by the
// external-command transport (§4.G): "sets as sorted sequences, omits
// callables, and embeds nested configs by value." CapabilitySpec/RootSpec
// callables never appear here — only their derived names, already folded
// into CallNameAllowlist/AttrAllowlist by the time a Policy is sent.
type Wire struct {
	BuiltinAllowlist  []string            `json:"builtin_allowlist"`
	CallNameAllowlist []string            `json:"call_name_allowlist"`
	AttrAllowlist     map[string][]string `json:"attr_allowlist"`

	AllowDef           bool `json:"allow_def"`
	AllowLambda        bool `json:"allow_lambda"`
	AllowClass         bool `json:"allow_class"`
	AllowTry           bool `json:"allow_try"`
	AllowWith          bool `json:"allow_with"`
	AllowLoops         bool `json:"allow_loops"`
	AllowComprehension bool `json:"allow_comprehension"`
	AllowSubscript     bool `json:"allow_subscript"`

	AllowDunderNames []string `json:"allow_dunder_names"`

	RestrictLoopIterables bool     `json:"restrict_loop_iterables"`
	LoopIterAllowlist     []string `json:"loop_iter_allowlist"`
	AllowLoopIterLiterals bool     `json:"allow_loop_iter_literals"`
	AllowLoopIterNames    bool     `json:"allow_loop_iter_names"`

	MaxASTNodes        int `json:"max_ast_nodes"`
	MaxLoopNesting     int `json:"max_loop_nesting"`
	MaxCompNesting     int `json:"max_comp_nesting"`
	MaxLiteralElems    int `json:"max_literal_elems"`
	MaxConstAllocElems int `json:"max_const_alloc_elems"`

	TimeoutMs int `json:"timeout_ms"`
	MaxSteps  int `json:"max_steps"`

	MaxStdoutBytes int `json:"max_stdout_bytes"`
	MaxStderrBytes int `json:"max_stderr_bytes"`

	MaxMemoryMB   int `json:"max_memory_mb"`
	MaxCPUSeconds int `json:"max_cpu_seconds"`
	MaxOpenFiles  int `json:"max_open_files"`
	MaxRecursion  int `json:"max_recursion"`

	Determinism *DeterminismConfig `json:"determinism,omitempty"`

	InputSchema  any `json:"input_schema,omitempty"`
	OutputSchema any `json:"output_schema,omitempty"`

	OSSandbox *OSSandboxConfig `json:"os_sandbox,omitempty"`
}

// ToWire projects a Policy into its sorted-set wire form.
func (p *Policy) ToWire() *Wire {
	attrs := make(map[string][]string, len(p.AttrAllowlist))
	for root, leaves := range p.AttrAllowlist {
		attrs[root] = SortedKeys(leaves)
	}
	return &Wire{
		BuiltinAllowlist:  SortedKeys(p.BuiltinAllowlist),
		CallNameAllowlist: SortedKeys(p.CallNameAllowlist),
		AttrAllowlist:     attrs,

		AllowDef:           p.AllowDef,
		AllowLambda:        p.AllowLambda,
		AllowClass:         p.AllowClass,
		AllowTry:           p.AllowTry,
		AllowWith:          p.AllowWith,
		AllowLoops:         p.AllowLoops,
		AllowComprehension: p.AllowComprehension,
		AllowSubscript:     p.AllowSubscript,

		AllowDunderNames: SortedKeys(p.AllowDunderNames),

		RestrictLoopIterables: p.RestrictLoopIterables,
		LoopIterAllowlist:     SortedKeys(p.LoopIterAllowlist),
		AllowLoopIterLiterals: p.AllowLoopIterLiterals,
		AllowLoopIterNames:    p.AllowLoopIterNames,

		MaxASTNodes:        p.MaxASTNodes,
		MaxLoopNesting:     p.MaxLoopNesting,
		MaxCompNesting:     p.MaxCompNesting,
		MaxLiteralElems:    p.MaxLiteralElems,
		MaxConstAllocElems: p.MaxConstAllocElems,

		TimeoutMs: p.TimeoutMs,
		MaxSteps:  p.MaxSteps,

		MaxStdoutBytes: p.MaxStdoutBytes,
		MaxStderrBytes: p.MaxStderrBytes,

		MaxMemoryMB:   p.MaxMemoryMB,
		MaxCPUSeconds: p.MaxCPUSeconds,
		MaxOpenFiles:  p.MaxOpenFiles,
		MaxRecursion:  p.MaxRecursion,

		Determinism: p.Determinism,

		InputSchema:  p.InputSchema,
		OutputSchema: p.OutputSchema,

		OSSandbox: p.OSSandbox,
	}
}

// FromWire reconstructs a Policy from its wire form.
func FromWire(w *Wire) *Policy {
	attrs := make(map[string]map[string]struct{}, len(w.AttrAllowlist))
	for root, leaves := range w.AttrAllowlist {
		attrs[root] = StringSet(leaves...)
	}
	return &Policy{
		BuiltinAllowlist:  StringSet(w.BuiltinAllowlist...),
		CallNameAllowlist: StringSet(w.CallNameAllowlist...),
		AttrAllowlist:     attrs,

		AllowDef:           w.AllowDef,
		AllowLambda:        w.AllowLambda,
		AllowClass:         w.AllowClass,
		AllowTry:           w.AllowTry,
		AllowWith:          w.AllowWith,
		AllowLoops:         w.AllowLoops,
		AllowComprehension: w.AllowComprehension,
		AllowSubscript:     w.AllowSubscript,

		AllowDunderNames: StringSet(w.AllowDunderNames...),

		RestrictLoopIterables: w.RestrictLoopIterables,
		LoopIterAllowlist:     StringSet(w.LoopIterAllowlist...),
		AllowLoopIterLiterals: w.AllowLoopIterLiterals,
		AllowLoopIterNames:    w.AllowLoopIterNames,

		MaxASTNodes:        w.MaxASTNodes,
		MaxLoopNesting:     w.MaxLoopNesting,
		MaxCompNesting:     w.MaxCompNesting,
		MaxLiteralElems:    w.MaxLiteralElems,
		MaxConstAllocElems: w.MaxConstAllocElems,

		TimeoutMs: w.TimeoutMs,
		MaxSteps:  w.MaxSteps,

		MaxStdoutBytes: w.MaxStdoutBytes,
		MaxStderrBytes: w.MaxStderrBytes,

		MaxMemoryMB:   w.MaxMemoryMB,
		MaxCPUSeconds: w.MaxCPUSeconds,
		MaxOpenFiles:  w.MaxOpenFiles,
		MaxRecursion:  w.MaxRecursion,

		Determinism: w.Determinism,

		InputSchema:  w.InputSchema,
		OutputSchema: w.OutputSchema,

		OSSandbox: w.OSSandbox,
	}
}
