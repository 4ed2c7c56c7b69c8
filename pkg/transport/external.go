package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/audit"
	"github.com/sandboxkernel/sandboxkernel/pkg/capabilities"
	"github.com/sandboxkernel/sandboxkernel/pkg/policy"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
	"github.com/sandboxkernel/sandboxkernel/pkg/worker"
)

// External dispatches one execution to a subprocess (the Command binary,
// normally cmd/sandboxworker) over a JSON request/response on stdin/stdout,
// mirroring env.py's "command" runner. It never accepts a live root proxy,
// a closure-backed capability, or an in-memory audit sink — those cannot
// survive a fork/exec boundary — so a LiveRequest using CapSpecs, Globals,
// or AuditSinks instead of their wire-safe equivalents is rejected.
type External struct {
	// Command is the worker binary and any fixed arguments, e.g.
	// []string{"/usr/local/bin/sandboxworker"}.
	Command []string
	// GracePeriod is how long Execute waits after SIGTERM before escalating
	// to SIGKILL once the context deadline is exceeded.
	GracePeriod time.Duration
}

func NewExternal(command []string) *External {
	return &External{Command: command, GracePeriod: 200 * time.Millisecond}
}

func (t *External) Execute(ctx context.Context, req LiveRequest) (worker.Output, error) {
	if len(req.CapSpecs) > 0 || req.Globals != nil || len(req.AuditSinks) > 0 {
		return worker.Output{}, fmt.Errorf("transport: external mode cannot carry live capabilities, roots, or audit sinks; use CapFuncPaths/RootNames/AuditSinkSpecs")
	}
	if len(t.Command) == 0 {
		return worker.Output{}, fmt.Errorf("transport: external mode requires a worker Command")
	}

	wireReq := Request{
		Code:           req.Code,
		CapSpecs:       req.CapFuncPaths,
		RootSpecs:      req.RootNames,
		Inputs:         req.Inputs,
		Tokens:         req.Tokens,
		SessionTokens:  req.SessionTokens,
		TenantTokens:   req.TenantTokens,
		AuditSinkSpecs: req.AuditSinkSpecs,
	}
	if req.Policy != nil {
		wireReq.Policy = req.Policy.ToWire()
	}

	payload, err := json.Marshal(wireReq)
	if err != nil {
		return worker.Output{}, fmt.Errorf("transport: marshal request: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Policy != nil && req.Policy.TimeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(req.Policy.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.Command(t.Command[0], t.Command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return worker.Output{}, fmt.Errorf("transport: start worker: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case err := <-waitErr:
		if err != nil && stdout.Len() == 0 {
			return worker.Output{}, fmt.Errorf("transport: worker exited: %w: %s", err, stderr.String())
		}
	case <-runCtx.Done():
		terminateProcessGroup(cmd, t.GracePeriod, waitErr)
		return worker.Output{OK: false}, runCtx.Err()
	}

	var wireResp Response
	if err := json.Unmarshal(stdout.Bytes(), &wireResp); err != nil {
		return worker.Output{}, fmt.Errorf("transport: unmarshal response: %w", err)
	}

	return worker.Output{
		OK:      wireResp.OK,
		Error:   wireResp.Error,
		Result:  wireResp.Result,
		Locals:  wireResp.Locals,
		Events:  wireResp.Events,
		Metrics: wireResp.Metrics,
		Stats:   wireResp.Stats,
	}, nil
}

// Resolve turns a wire Request back into a worker.Input using reg to
// rebuild each capability and root from its func_path/name. Run by
// cmd/sandboxworker inside the subprocess External spawns.
func Resolve(reg *Registry, wireReq Request, sinks []audit.AuditSink) (worker.Input, error) {
	in := worker.Input{
		Code:          wireReq.Code,
		Inputs:        wireReq.Inputs,
		Tokens:        wireReq.Tokens,
		SessionTokens: wireReq.SessionTokens,
		TenantTokens:  wireReq.TenantTokens,
		AuditSinks:    sinks,
	}
	if wireReq.Policy != nil {
		in.Policy = policy.FromWire(wireReq.Policy)
	}

	in.CapSpecs = make([]capabilities.CapabilitySpec, 0, len(wireReq.CapSpecs))
	for _, w := range wireReq.CapSpecs {
		spec, err := reg.ResolveCapability(w)
		if err != nil {
			return worker.Input{}, err
		}
		in.CapSpecs = append(in.CapSpecs, spec)
	}

	if len(wireReq.RootSpecs) > 0 {
		in.Globals = make(map[string]any, len(wireReq.RootSpecs))
		for _, w := range wireReq.RootSpecs {
			spec, err := reg.ResolveRoot(w)
			if err != nil {
				return worker.Input{}, err
			}
			in.Globals[spec.Name] = roots.NewProxy(spec)
		}
	}

	return in, nil
}
