// Package sandboxerr defines the typed error vocabulary shared by the
// checker, worker, and capability runtime — a small leaf package so those
// three can report structured failures without importing one another.
package sandboxerr

import "fmt"

// SandboxError is the base error carrying an optional source location,
// mirroring original_source/sandboxed_env/errors.py's SandboxError.
type SandboxError struct {
	Msg    string
	Lineno *int
	Col    *int
}

func (e *SandboxError) Error() string { return e.Msg }

// New builds a SandboxError with no location.
func New(msg string) *SandboxError { return &SandboxError{Msg: msg} }

// At builds a SandboxError with a 1-based line/col location.
func At(msg string, line, col int) *SandboxError {
	return &SandboxError{Msg: msg, Lineno: &line, Col: &col}
}

// StepLimitError is raised when the worker's step tracer exceeds
// policy.MaxSteps.
type StepLimitError struct {
	*SandboxError
}

func NewStepLimitError(steps, max int) *StepLimitError {
	return &StepLimitError{SandboxError: New(fmt.Sprintf("step limit exceeded (%d > %d)", steps, max))}
}

// CapabilityBudgetError is raised when a capability call would exceed its
// BudgetSpec, per §4.E. It surfaces to the caller as a `runtime` stage
// error per spec.md §7 ("they originate inside user code").
type CapabilityBudgetError struct {
	*SandboxError
	Capability string
	Reason     string // e.g. "max_calls", "max_call_ms"
}

func NewCapabilityBudgetError(capability, reason string) *CapabilityBudgetError {
	return &CapabilityBudgetError{
		SandboxError: New(fmt.Sprintf("capability %q exceeded budget: %s", capability, reason)),
		Capability:   capability,
		Reason:       reason,
	}
}
