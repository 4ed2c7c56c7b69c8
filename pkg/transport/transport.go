package transport

import (
	"context"
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/worker"
)

// LiveRequest is one execution's parameters before a transport dispatches
// it. The Inline transport consumes the live fields (CapSpecs, Globals,
// AuditSinks) directly; the External transport instead requires the
// wire-safe CapFuncPaths/RootNames/AuditSinkSpecs, since none of a live
// root proxy, a closure-backed capability, or an in-memory sink can cross
// a process boundary (§6).
type LiveRequest struct {
	Code          string
	Policy        *policy.Policy
	CapSpecs      []capabilities.CapabilitySpec
	Globals       map[string]any
	Inputs        any
	Tokens        *int64
	SessionTokens *int64
	TenantTokens  *int64
	AuditSinks    []audit.AuditSink

	// External-mode only.
	CapFuncPaths   []CapSpecWire
	RootNames      []RootSpecWire
	AuditSinkSpecs []audit.Spec
}

// Transport dispatches one LiveRequest to a worker and returns its Output.
type Transport interface {
	Execute(ctx context.Context, req LiveRequest) (worker.Output, error)
}

// Inline runs the worker in the same process and address space as the
// caller, the lowest-latency mode and the only one that can accept live
// root proxies, closures, and in-memory audit sinks.
type Inline struct{}

func NewInline() *Inline { return &Inline{} }

// Execute runs req.Policy's TimeoutMs as a soft deadline on top of ctx: the
// worker itself only checks ctx between statements (it cannot forcibly
// preempt a runaway evaluation loop the way a killed OS process can), so a
// caller that needs a hard bound should prefer External.
func (t *Inline) Execute(ctx context.Context, req LiveRequest) (worker.Output, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if req.Policy != nil && req.Policy.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.Policy.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	in := worker.Input{
		Code:          req.Code,
		Policy:        req.Policy,
		CapSpecs:      req.CapSpecs,
		Globals:       req.Globals,
		Inputs:        req.Inputs,
		Tokens:        req.Tokens,
		SessionTokens: req.SessionTokens,
		TenantTokens:  req.TenantTokens,
		AuditSinks:    req.AuditSinks,
	}

	done := make(chan worker.Output, 1)
	go func() { done <- worker.Run(runCtx, in) }()

	select {
	case out := <-done:
		return out, nil
	case <-runCtx.Done():
		// The goroutine above is left running to completion in the
		// background (Go has no mechanism to forcibly abort it); its
		// result is discarded once it finishes. Evaluator step checks
		// between statements are the only in-process abort path.
		return worker.Output{OK: false}, runCtx.Err()
	}
}
