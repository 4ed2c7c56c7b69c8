package transport

import (
	"fmt"

	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
)

// Registry resolves a capability's func_path or a root's name into its
// live Go implementation. The External transport's worker subprocess has
// none of the host process's closures, so whatever capabilities and roots
// a deployment wants reachable there must be registered here at process
// startup — the Go analogue of the original's dotted func_path import in
// spawn-safe mode.
type Registry struct {
	caps  map[string]func() capabilities.CapabilitySpec
	roots map[string]func() *roots.RootSpec
}

func NewRegistry() *Registry {
	return &Registry{
		caps:  map[string]func() capabilities.CapabilitySpec{},
		roots: map[string]func() *roots.RootSpec{},
	}
}

// RegisterCapability makes a capability reachable under funcPath by any
// wire Request that names it.
func (r *Registry) RegisterCapability(funcPath string, factory func() capabilities.CapabilitySpec) {
	r.caps[funcPath] = factory
}

// RegisterRoot makes a root reachable under name.
func (r *Registry) RegisterRoot(name string, factory func() *roots.RootSpec) {
	r.roots[name] = factory
}

// ResolveCapability rebuilds the spec registered under w.FuncPath, then
// overlays the wire-supplied per-run budget and pricing onto it.
func (r *Registry) ResolveCapability(w CapSpecWire) (capabilities.CapabilitySpec, error) {
	factory, ok := r.caps[w.FuncPath]
	if !ok {
		return capabilities.CapabilitySpec{}, fmt.Errorf("transport: no capability registered under func_path %q", w.FuncPath)
	}
	spec := factory()
	spec.Name = w.Name
	spec.Budget = w.Budget
	spec.TokensPerCall = w.TokensPerCall
	spec.TokensPerByte = w.TokensPerByte
	if w.ArgReprLimit > 0 {
		spec.ArgReprLimit = w.ArgReprLimit
	}
	return spec, nil
}

// ResolveRoot rebuilds the RootSpec registered under w.Name.
func (r *Registry) ResolveRoot(w RootSpecWire) (*roots.RootSpec, error) {
	factory, ok := r.roots[w.Name]
	if !ok {
		return nil, fmt.Errorf("transport: no root registered under name %q", w.Name)
	}
	return factory(), nil
}
