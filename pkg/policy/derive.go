package policy

// MergeRoot folds a root's top-level allow_tree keys into attr_allowlist,
// per §4.A: "For each RootSpec s, attr_allowlist[s.name] gains the
// top-level keys of s.allow_tree." Called once per RootSpec during façade
// construction (sandbox.New). It takes the root's name and plain key names,
// so pkg/policy does not import pkg/roots.
func (p *Policy) MergeRoot(name string, topLevelKeys []string) {
	leaves, ok := p.AttrAllowlist[name]
	if !ok {
		leaves = map[string]struct{}{}
		p.AttrAllowlist[name] = leaves
	}
	for _, k := range topLevelKeys {
		leaves[k] = struct{}{}
	}
}

// MergeCapability folds a capability's name into call_name_allowlist, per
// §4.A: "For each CapabilitySpec c, call_name_allowlist gains c.name."
func (p *Policy) MergeCapability(name string) {
	p.CallNameAllowlist[name] = struct{}{}
}
