// Package worker implements the isolation worker (§4.F): the pipeline one
// execution runs through once it has been dispatched by a transport —
// rlimits, determinism, OS sandbox, parse, policy check, capability/root
// wiring, evaluation under a step budget, and result serialization.
//
// Run never panics on a user-code failure: every stage from parse onward
// returns a populated Output with ok=false and a staged ErrorInfo instead.
// Process isolation (setsid, SIGTERM/SIGKILL escalation, the timeout
// itself) is the caller's concern — pkg/transport wraps Run with that
// (pkg/sandbox reaches Run only through a Transport), mirroring how _run_worker is itself
// wrapped by SandboxedEnv.execute's process/subprocess management.
package worker

import (
	"context"
	"strings"
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/checker"
	"github.com/sandboxkernel/sandboxkernel/pkg/evaluator"
	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
	"github.com/sandboxkernel/sandboxkernel/pkg/langparser"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/result"
)

// Input is everything one execution needs, already resolved into live Go
// values: root proxies and capability specs, not wire descriptors. A
// transport is responsible for turning a wire Request into this shape (in
// the External transport's case, inside the worker subprocess).
type Input struct {
	Code          string
	Policy        *policy.Policy
	CapSpecs      []capabilities.CapabilitySpec
	Globals       map[string]any // pre-built root proxies, keyed by root name
	Inputs        any            // a mapping splats into locals by key; anything else binds to "input"
	Tokens        *int64
	SessionTokens *int64
	TenantTokens  *int64
	AuditSinks    []audit.AuditSink
}

// Output is the worker's full result, pre-serialization-boundary: the
// façade copies it into a result.SandboxResult after locale translation.
type Output struct {
	OK      bool
	Error   *result.ErrorInfo
	Result  any
	Locals  map[string]any
	Events  []result.Event
	Metrics *result.Metrics
	Stats   *result.Stats
}

func floatFormat(p *policy.Policy) string {
	if p.Determinism != nil {
		return p.Determinism.FloatFormat
	}
	return ""
}

func serializeOpts(p *policy.Policy) freeze.SerializeOptions {
	return freeze.SerializeOptions{FloatFormat: floatFormat(p), MaxBytes: p.MaxStdoutBytes}
}

// Run executes one program under in.Policy and returns its full result.
// ctx cancellation is checked between statements and aborts the run with
// ctx.Err(), surfaced as a "runtime" stage error.
func Run(ctx context.Context, in Input) Output {
	t0 := time.Now()
	applyRlimits(in.Policy)
	clock := NewClock(in.Policy.Determinism)

	if err := applyOSSandbox(in.Policy.OSSandbox); err != nil {
		return failOutput("worker", err, in.Code, t0, nil)
	}
	recorder := audit.NewInMemorySink()
	sinks := append([]audit.AuditSink{recorder}, in.AuditSinks...)
	stream := audit.NewStream(sinks)

	stdout := NewEventWriter(in.Policy.MaxStdoutBytes, "stdout", clock, stream)
	stderr := NewEventWriter(in.Policy.MaxStderrBytes, "stderr", clock, stream)
	_ = stderr // reserved for evaluator-surfaced warnings; nothing writes to it yet

	prog, err := langparser.New().Parse(in.Code)
	if err != nil {
		return failOutput("parse", err, in.Code, t0, recorder)
	}

	if err := checker.Check(in.Policy, prog); err != nil {
		return failOutput("policy", err, in.Code, t0, recorder)
	}

	globals := safeBuiltins(in.Policy, stdout)
	for k, v := range in.Globals {
		globals[k] = v
	}

	scope := capabilities.NewScopeBundle(in.SessionTokens, in.TenantTokens)
	if in.Tokens != nil {
		scope.Exec = capabilities.NewTokenScope(in.Tokens)
	}

	wrapped, states, err := buildCapabilities(in.CapSpecs, scope, stream, clock)
	if err != nil {
		return failOutput("worker", err, in.Code, t0, recorder)
	}
	for name, w := range wrapped {
		globals[name] = w.Func()
	}

	locals := map[string]any{}
	if in.Inputs != nil {
		fr := freeze.DeepFreeze(in.Inputs, 0)
		if m, ok := fr.(freeze.FrozenMap); ok {
			for k, v := range m {
				locals[k] = thawFrozen(v)
			}
		} else {
			locals["input"] = thawFrozen(fr)
		}
	}

	steps := NewStepLimiter(in.Policy.MaxSteps)
	env := &evaluator.Env{Globals: globals, Locals: locals}

	ok := true
	var runtimeErr *result.ErrorInfo
	if _, evalErr := evaluator.New().Eval(ctx, prog, env, steps); evalErr != nil {
		ok = false
		runtimeErr = errInfo("runtime", evalErr, in.Code)
	}

	capabilities.RunClose(in.CapSpecs, states)

	metrics := result.NewMetrics()
	metrics.WallMs = time.Since(t0).Milliseconds()
	metrics.Steps = steps.Count()
	metrics.StdoutBytes = stdout.Len()
	metrics.StderrBytes = stderr.Len()
	for name, w := range wrapped {
		metrics.CapCalls[name] = w.Calls
		metrics.CapMs[name] = w.Ms
		metrics.CapBytesOut[name] = w.BytesOut
		metrics.CapBytesIn[name] = w.BytesIn
	}

	opts := serializeOpts(in.Policy)
	safeLocals := map[string]any{}
	for k, v := range env.Locals {
		if strings.HasPrefix(k, "__") {
			continue
		}
		safeLocals[k] = freeze.SafeSerialize(v, opts)
	}

	stats := &result.Stats{
		User: freeze.SafeSerialize(env.Locals["__stats__"], opts),
		TokenScopes: result.TokenScopes{
			Exec:    scope.Exec.Remaining,
			Session: scope.Session.Remaining,
			Tenant:  scope.Tenant.Remaining,
		},
	}

	return Output{
		OK:      ok,
		Error:   runtimeErr,
		Result:  freeze.SafeSerialize(env.Locals["__result__"], opts),
		Locals:  safeLocals,
		Events:  recorder.Snapshot(),
		Metrics: metrics,
		Stats:   stats,
	}
}

func failOutput(stage string, err error, code string, t0 time.Time, recorder *audit.InMemorySink) Output {
	metrics := result.NewMetrics()
	metrics.WallMs = time.Since(t0).Milliseconds()
	var events []result.Event
	if recorder != nil {
		events = recorder.Snapshot()
	}
	return Output{
		OK:      false,
		Error:   errInfo(stage, err, code),
		Events:  events,
		Metrics: metrics,
	}
}

// capEventAdapter routes a WrappedCapability's "cap" events into the run's
// audit stream, implementing capabilities.CapEventSink.
type capEventAdapter struct {
	stream *audit.Stream
}

func (a capEventAdapter) EmitCapEvent(tsMs int64, data map[string]any) {
	a.stream.Emit(result.Event{TsMs: tsMs, Type: "cap", Data: data})
}

// buildCapabilities runs each spec's InitPath once, then wraps it per
// §4.E, mirroring build_caps_in_worker. On any InitPath failure the
// capabilities already initialized are torn down in reverse order before
// the error is returned, so a partially-built run never leaks a resource.
func buildCapabilities(specs []capabilities.CapabilitySpec, scope *capabilities.ScopeBundle, stream *audit.Stream, clock *Clock) (map[string]*capabilities.WrappedCapability, []any, error) {
	states := make([]any, len(specs))
	wrapped := make(map[string]*capabilities.WrappedCapability, len(specs))
	sink := capEventAdapter{stream: stream}

	for i, spec := range specs {
		if spec.InitPath != nil {
			st, err := capabilities.RunInit(spec)
			if err != nil {
				capabilities.RunClose(specs[:i], states[:i])
				return nil, nil, err
			}
			states[i] = st
		}
		wrapped[spec.Name] = capabilities.NewWrappedCapability(spec, scope, sink, clock.Now)
	}
	return wrapped, states, nil
}

// thawFrozen converts a freeze.FrozenMap/freeze.FrozenTuple into the plain
// map[string]any/[]any the evaluator's runtime value model uses, the same
// boundary conversion pkg/evaluator applies to root-proxy and capability
// returns — deep_freeze's immutability is convention-only, so nothing is
// lost by dropping the wrapper type once a value is seeded into locals.
func thawFrozen(v any) any {
	switch t := v.(type) {
	case freeze.FrozenMap:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = thawFrozen(val)
		}
		return out
	case freeze.FrozenTuple:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = thawFrozen(val)
		}
		return out
	default:
		return v
	}
}
