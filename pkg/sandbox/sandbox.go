// Package sandbox implements the façade (§4.I): the single entry point a
// caller uses to run one piece of untrusted code under a Policy, wiring
// together the checker, the transport, schema validation, token-scope
// persistence, and locale translation.
package sandbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/i18n"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/result"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
	"github.com/sandboxkernel/sandboxkernel/pkg/schema"
	"github.com/sandboxkernel/sandboxkernel/pkg/tokenstore"
	"github.com/sandboxkernel/sandboxkernel/pkg/transport"
)

// Config builds one Sandbox. Exactly one of (Roots, Capabilities) or
// (RootNames, CapFuncPaths) applies, depending on Transport: Inline
// consumes the live fields, External consumes the wire-safe ones — see
// transport.LiveRequest. A façade built for External mode must have its
// root attr_allowlist already folded into Policy by the caller, since the
// façade itself never sees the registered RootSpec's allow_tree (only the
// worker subprocess, via its Registry, does).
type Config struct {
	Policy       *policy.Policy
	Roots        []*roots.RootSpec
	Capabilities []capabilities.CapabilitySpec
	RootNames    []transport.RootSpecWire
	CapFuncPaths []transport.CapSpecWire

	Transport transport.Transport

	AuditSinks     []audit.AuditSink
	AuditSinkSpecs []audit.Spec

	// SessionStore/TenantStore persist each scope's balance across
	// Execute calls; nil means that scope starts unbounded every time
	// (no durable tracking).
	SessionStore tokenstore.Store
	TenantStore  tokenstore.Store

	// Locale translates ErrorInfo.Message on the way out (§4.I).
	Locale string
}

// Sandbox is one normalized policy, wired to one transport.
type Sandbox struct {
	policy *policy.Policy
	cfg    Config
}

// New normalizes cfg.Policy (merging every root's top-level allow_tree keys
// and every capability's name into the allowlists, mirroring
// SandboxedEnv.__init__) and returns a ready-to-use Sandbox.
func New(cfg Config) (*Sandbox, error) {
	if cfg.Policy == nil {
		return nil, fmt.Errorf("sandbox: Config.Policy is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("sandbox: Config.Transport is required")
	}

	p := cfg.Policy.Clone()
	for _, r := range cfg.Roots {
		p.MergeRoot(r.Name, r.TopLevelKeys())
	}
	for _, c := range cfg.Capabilities {
		p.MergeCapability(c.Name)
	}
	for _, r := range cfg.RootNames {
		p.MergeRoot(r.Name, nil)
	}
	for _, c := range cfg.CapFuncPaths {
		p.MergeCapability(c.Name)
	}

	return &Sandbox{policy: p, cfg: cfg}, nil
}

// Execute runs code once. inputs are frozen and seeded into locals; tokens
// is the exec scope's starting balance (nil means unbounded). Mirrors
// SandboxedEnv.execute: validate input_schema, dispatch, validate
// output_schema on success, persist token scopes, translate the error
// message, return a SandboxResult.
func (s *Sandbox) Execute(ctx context.Context, code string, inputs any, tokens *int64) (*result.SandboxResult, error) {
	runID := uuid.NewString()

	if err := schema.Validate(inputs, s.policy.InputSchema, "$.inputs"); err != nil {
		return &result.SandboxResult{
			RunID:   runID,
			OK:      false,
			Error:   &result.ErrorInfo{Stage: "schema", Type: "SchemaError", Message: err.Error()},
			Events:  []result.Event{},
			Metrics: result.NewMetrics(),
		}, nil
	}

	sessionKey, tenantKey := sessionTenantKeys(ctx)
	sessionTokens, err := s.loadBalance(ctx, s.cfg.SessionStore, sessionKey)
	if err != nil {
		return nil, err
	}
	tenantTokens, err := s.loadBalance(ctx, s.cfg.TenantStore, tenantKey)
	if err != nil {
		return nil, err
	}

	req := transport.LiveRequest{
		Code:           code,
		Policy:         s.policy,
		CapSpecs:       s.cfg.Capabilities,
		Inputs:         inputs,
		Tokens:         tokens,
		SessionTokens:  sessionTokens,
		TenantTokens:   tenantTokens,
		AuditSinks:     s.cfg.AuditSinks,
		CapFuncPaths:   s.cfg.CapFuncPaths,
		RootNames:      s.cfg.RootNames,
		AuditSinkSpecs: s.cfg.AuditSinkSpecs,
	}
	if len(s.cfg.Roots) > 0 {
		req.Globals = make(map[string]any, len(s.cfg.Roots))
		for _, r := range s.cfg.Roots {
			req.Globals[r.Name] = roots.NewProxy(r)
		}
	}

	out, err := s.cfg.Transport.Execute(ctx, req)
	if err != nil {
		return &result.SandboxResult{
			RunID:   runID,
			OK:      false,
			Error:   &result.ErrorInfo{Stage: "worker", Type: "TransportError", Message: err.Error()},
			Events:  []result.Event{},
			Metrics: result.NewMetrics(),
		}, nil
	}

	if out.OK {
		if verr := schema.Validate(out.Result, s.policy.OutputSchema, "$.result"); verr != nil {
			out.OK = false
			out.Error = &result.ErrorInfo{Stage: "schema", Type: "SchemaError", Message: verr.Error()}
		}
	}

	if out.Stats != nil {
		if err := s.saveBalance(ctx, s.cfg.SessionStore, sessionKey, out.Stats.TokenScopes.Session); err != nil {
			return nil, err
		}
		if err := s.saveBalance(ctx, s.cfg.TenantStore, tenantKey, out.Stats.TokenScopes.Tenant); err != nil {
			return nil, err
		}
	}

	errInfo := i18n.TranslateError(out.Error, s.cfg.Locale)

	return &result.SandboxResult{
		RunID:   runID,
		OK:      out.OK,
		Result:  out.Result,
		Locals:  out.Locals,
		Error:   errInfo,
		Events:  out.Events,
		Metrics: out.Metrics,
		Stats:   out.Stats,
	}, nil
}

func (s *Sandbox) loadBalance(ctx context.Context, store tokenstore.Store, key string) (*int64, error) {
	if store == nil || key == "" {
		return nil, nil
	}
	balance, found, err := store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("sandbox: load token balance for %q: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return &balance, nil
}

func (s *Sandbox) saveBalance(ctx context.Context, store tokenstore.Store, key string, balance *int64) error {
	if store == nil || key == "" || balance == nil {
		return nil
	}
	if err := store.Save(ctx, key, *balance); err != nil {
		return fmt.Errorf("sandbox: save token balance for %q: %w", key, err)
	}
	return nil
}

// scopeKeyType is an unexported context key type for sessionTenantKeys,
// preventing collisions with keys set by other packages.
type scopeKeyType int

const (
	sessionKeyCtx scopeKeyType = iota
	tenantKeyCtx
)

// WithSessionKey attaches the session scope id Execute should use to load
// and save its balance via Config.SessionStore.
func WithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx, key)
}

// WithTenantKey attaches the tenant scope id, analogous to WithSessionKey.
func WithTenantKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, tenantKeyCtx, key)
}

func sessionTenantKeys(ctx context.Context) (session, tenant string) {
	if v, ok := ctx.Value(sessionKeyCtx).(string); ok {
		session = v
	}
	if v, ok := ctx.Value(tenantKeyCtx).(string); ok {
		tenant = v
	}
	return
}
