package capabilities

import (
	"fmt"
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/freeze"
	"github.com/sandboxkernel/sandboxkernel/pkg/roots"
)

// Validator inspects call arguments before invocation and may reject them;
// it never mutates args.
type Validator func(args []any) error

// Serializer post-processes a capability's return value before it is
// measured and frozen for the caller.
type Serializer func(ret any) (any, error)

// CapabilitySpec is a capability's static definition: its underlying
// function plus the budget and token pricing the worker enforces around
// every call.
type CapabilitySpec struct {
	Name          string
	Call          roots.Func
	Validator     Validator
	Serializer    Serializer
	InitPath      func() (any, error)
	ClosePath     func(state any) error
	Budget        BudgetSpec
	TokensPerCall int64
	TokensPerByte float64
	ArgReprLimit  int
}

// CapEventSink receives one "cap" event per call, success or failure.
type CapEventSink interface {
	EmitCapEvent(tsMs int64, data map[string]any)
}

// WrappedCapability is the single-call-contract wrapper the worker installs
// in globals for each CapabilitySpec, implementing §4.E steps 1-5.
type WrappedCapability struct {
	spec    CapabilitySpec
	budget  *BudgetManager
	sink    CapEventSink
	now     func() time.Time
	t0      time.Time

	Calls    int
	Ms       int64
	BytesOut int
	BytesIn  int
}

// NewWrappedCapability builds a wrapper around spec, charging against scope
// and reporting "cap" events through sink. now defaults to time.Now when nil.
func NewWrappedCapability(spec CapabilitySpec, scope *ScopeBundle, sink CapEventSink, now func() time.Time) *WrappedCapability {
	if now == nil {
		now = time.Now
	}
	budget := spec.Budget
	return &WrappedCapability{
		spec:   spec,
		budget: NewBudgetManager(spec.Name, budget, scope, now),
		sink:   sink,
		now:    now,
		t0:     now(),
	}
}

// Func returns the roots.Func the worker installs into globals under the
// capability's name.
func (w *WrappedCapability) Func() roots.Func {
	return w.invoke
}

func (w *WrappedCapability) invoke(args []any, kwargs map[string]any) (any, error) {
	if w.spec.Validator != nil {
		if err := w.spec.Validator(args); err != nil {
			return nil, err
		}
	}

	bytesIn := 0
	for _, a := range args {
		bytesIn += freeze.ApproxBytes(a)
	}
	for _, v := range kwargs {
		bytesIn += freeze.ApproxBytes(v)
	}

	start := w.now()
	var ret any
	var ser any
	var callErr error

	ret, callErr = w.spec.Call(args, kwargs)
	ok := callErr == nil
	if ok {
		ser = ret
		if w.spec.Serializer != nil {
			ser, callErr = w.spec.Serializer(ser)
			ok = callErr == nil
		}
	}

	ms := int64(w.now().Sub(start) / time.Millisecond)
	outVal := ser
	if outVal == nil {
		outVal = ret
	}
	bytesOut := freeze.ApproxBytes(outVal)
	tokens := w.spec.TokensPerCall + int64(w.spec.TokensPerByte*float64(maxInt(bytesOut, 0)))

	cost := CapabilityCost{Calls: 1, Ms: ms, BytesIn: bytesIn, BytesOut: bytesOut, Tokens: tokens}
	budgetErr := w.budget.Charge(cost)

	w.Calls = int(w.budget.Calls)
	w.Ms = w.budget.Ms
	w.BytesOut = int(w.budget.BytesOut)
	w.BytesIn = int(w.budget.BytesIn)

	if w.sink != nil {
		rec := map[string]any{
			"name":      w.spec.Name,
			"ok":        ok && budgetErr == nil,
			"ms":        ms,
			"bytes_out": bytesOut,
			"bytes_in":  bytesIn,
		}
		if callErr != nil {
			rec["error"] = callErr.Error()
		}
		w.sink.EmitCapEvent(int64(w.now().Sub(w.t0)/time.Millisecond), rec)
	}

	if budgetErr != nil {
		return nil, budgetErr
	}
	if callErr != nil {
		return nil, callErr
	}
	return freeze.DeepFreeze(ser, 0), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RunInit invokes spec's InitPath exactly once, per §4.E lifecycle.
func RunInit(spec CapabilitySpec) (any, error) {
	if spec.InitPath == nil {
		return nil, nil
	}
	return spec.InitPath()
}

// RunClose invokes every non-nil ClosePath in the reverse order its
// capability was registered, collecting (but not propagating) failures —
// teardown always runs to completion.
func RunClose(specs []CapabilitySpec, states []any) []error {
	var errs []error
	for i := len(specs) - 1; i >= 0; i-- {
		spec := specs[i]
		if spec.ClosePath == nil {
			continue
		}
		if err := spec.ClosePath(states[i]); err != nil {
			errs = append(errs, fmt.Errorf("capability %q close: %w", spec.Name, err))
		}
	}
	return errs
}
