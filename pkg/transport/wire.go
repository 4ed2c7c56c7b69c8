package transport

import (
	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

// CapSpecWire is a capability's JSON-serializable descriptor (§4.G): the
// live Call/Validator/Serializer/InitPath/ClosePath never cross a process
// boundary, only a name a Registry resolves on the other side, plus the
// per-run budget overrides the registered capability's default.
type CapSpecWire struct {
	Name          string                    `json:"name"`
	FuncPath      string                    `json:"func_path"`
	Budget        capabilities.BudgetSpec   `json:"budget"`
	TokensPerCall int64                     `json:"tokens_per_call,omitempty"`
	TokensPerByte float64                   `json:"tokens_per_byte,omitempty"`
	ArgReprLimit  int                       `json:"arg_repr_limit,omitempty"`
}

// RootSpecWire names a root a Registry must resolve on the worker side.
type RootSpecWire struct {
	Name string `json:"name"`
}

// Request is the wire form of one execution, mirroring spec.md §4.G's
// field list: code, policy, cap_specs, root_specs, inputs, mode, tokens,
// session_tokens, tenant_tokens, audit_sink_specs.
type Request struct {
	Code           string             `json:"code"`
	Policy         *policy.Wire       `json:"policy"`
	CapSpecs       []CapSpecWire      `json:"cap_specs,omitempty"`
	RootSpecs      []RootSpecWire     `json:"root_specs,omitempty"`
	Inputs         any                `json:"inputs,omitempty"`
	Mode           string             `json:"mode,omitempty"`
	Tokens         *int64             `json:"tokens,omitempty"`
	SessionTokens  *int64             `json:"session_tokens,omitempty"`
	TenantTokens   *int64             `json:"tenant_tokens,omitempty"`
	AuditSinkSpecs []audit.Spec       `json:"audit_sink_specs,omitempty"`
}

// Response is the wire form of a worker.Output.
type Response struct {
	OK      bool               `json:"ok"`
	Error   *result.ErrorInfo  `json:"error,omitempty"`
	Result  any                `json:"result,omitempty"`
	Locals  map[string]any     `json:"locals,omitempty"`
	Events  []result.Event     `json:"events"`
	Metrics *result.Metrics    `json:"metrics"`
	Stats   *result.Stats      `json:"stats,omitempty"`
}
