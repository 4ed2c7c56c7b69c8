// Package capabilities implements the capability runtime (§4.E): budgeted,
// audited wrappers around host-provided functions exposed to user code.
package capabilities

import (
	"time"

	"github.com/sandboxkernel/sandboxkernel/pkg/sandboxerr"
)

// CapabilityCost is what one call charges against a BudgetManager.
type CapabilityCost struct {
	Calls    int
	Ms       int64
	BytesIn  int
	BytesOut int
	Tokens   int64
}

// BudgetSpec bounds one capability's resource consumption for the lifetime
// of a single run. A nil field means that dimension is unbounded.
type BudgetSpec struct {
	MaxCalls      *int64   // per-run
	MaxTotalMs    *int64   // per-run
	MaxQPS        *float64 // rate limit
	MaxBandwidth  *float64 // bytes/sec, based on bytes_out
	MaxRetBytes   *int64   // size per-call
	MaxCallMs     *int64   // per-call
	MaxTotalBytes *int64   // per-run
	MaxTokens     *int64   // per-exec scope
}

// DefaultBudgetSpec mirrors BudgetSpec()'s Python defaults: 100 calls and
// 200ms per run, 200,000 bytes per return value, everything else unbounded.
func DefaultBudgetSpec() BudgetSpec {
	calls := int64(100)
	ms := int64(200)
	ret := int64(200_000)
	return BudgetSpec{MaxCalls: &calls, MaxTotalMs: &ms, MaxRetBytes: &ret}
}

// TokenScope tracks a single token budget's remaining balance. Total==nil
// means unlimited.
type TokenScope struct {
	Total     *int64
	Remaining *int64
}

// NewTokenScope builds a TokenScope with the given starting balance, or an
// unlimited scope if tokens is nil.
func NewTokenScope(tokens *int64) *TokenScope {
	if tokens == nil {
		return &TokenScope{}
	}
	t := *tokens
	return &TokenScope{Total: &t, Remaining: &t}
}

// Consume deducts n tokens, erroring if the scope is bounded and n exceeds
// what remains.
func (s *TokenScope) Consume(n int64) error {
	if s.Remaining == nil {
		return nil
	}
	if n > *s.Remaining {
		return sandboxerr.New("token budget exceeded")
	}
	*s.Remaining -= n
	return nil
}

// ScopeBundle is the exec→session→tenant token hierarchy a capability draws
// from in order, per §4.E.
type ScopeBundle struct {
	Exec    *TokenScope
	Session *TokenScope
	Tenant  *TokenScope
}

// NewScopeBundle builds a bundle with an initially-unbounded exec scope
// (BudgetManager.Charge lazily initializes it from spec.max_tokens on first
// use) and the given session/tenant starting balances.
func NewScopeBundle(session, tenant *int64) *ScopeBundle {
	return &ScopeBundle{
		Exec:    &TokenScope{},
		Session: NewTokenScope(session),
		Tenant:  NewTokenScope(tenant),
	}
}

// Consume walks exec, session, tenant in order and draws the full n from
// the first scope with enough remaining balance. If every scope is
// unbounded, the call is a no-op. If every bounded scope has insufficient
// balance, it errors.
func (b *ScopeBundle) Consume(n int64) error {
	if n <= 0 {
		return nil
	}
	scopes := []*TokenScope{b.Exec, b.Session, b.Tenant}
	allUnbounded := true
	for _, s := range scopes {
		if s.Remaining == nil {
			continue
		}
		allUnbounded = false
		if *s.Remaining >= n {
			return s.Consume(n)
		}
	}
	if allUnbounded {
		return nil
	}
	return sandboxerr.New("token budget exceeded across scopes")
}

// BudgetManager enforces one capability's BudgetSpec across the calls made
// to it during a single run, charging CapabilityCost in the fixed order
// spec.md §4.E requires.
type BudgetManager struct {
	name  string
	spec  BudgetSpec
	scope *ScopeBundle
	now   func() time.Time

	Calls    int64
	Ms       int64
	BytesOut int64
	BytesIn  int64
	start    time.Time
}

// NewBudgetManager builds a BudgetManager for the capability named name. now
// defaults to time.Now when nil (the worker substitutes the
// determinism-seeded clock).
func NewBudgetManager(name string, spec BudgetSpec, scope *ScopeBundle, now func() time.Time) *BudgetManager {
	if now == nil {
		now = time.Now
	}
	return &BudgetManager{name: name, spec: spec, scope: scope, now: now, start: now()}
}

func (m *BudgetManager) err(reason string) error {
	return sandboxerr.NewCapabilityBudgetError(m.name, reason)
}

// Charge applies cost to the running totals and enforces every limit in
// spec's stated order, first-triggered-wins.
func (m *BudgetManager) Charge(cost CapabilityCost) error {
	if cost.Calls <= 0 {
		return nil
	}
	if m.spec.MaxCallMs != nil && cost.Ms > *m.spec.MaxCallMs {
		return m.err("max_call_ms")
	}
	if m.spec.MaxRetBytes != nil && int64(cost.BytesOut) > *m.spec.MaxRetBytes {
		return m.err("max_ret_bytes")
	}

	m.Calls += int64(cost.Calls)
	m.Ms += cost.Ms
	m.BytesOut += int64(cost.BytesOut)
	m.BytesIn += int64(cost.BytesIn)

	if m.spec.MaxCalls != nil && m.Calls > *m.spec.MaxCalls {
		return m.err("max_calls")
	}
	if m.spec.MaxTotalMs != nil && m.Ms > *m.spec.MaxTotalMs {
		return m.err("max_total_ms")
	}
	if m.spec.MaxTotalBytes != nil && m.BytesOut > *m.spec.MaxTotalBytes {
		return m.err("max_total_bytes")
	}

	elapsed := m.now().Sub(m.start).Seconds()
	if elapsed < 1e-6 {
		elapsed = 1e-6
	}
	if m.spec.MaxQPS != nil && float64(m.Calls)/elapsed > *m.spec.MaxQPS {
		return m.err("max_qps")
	}
	if m.spec.MaxBandwidth != nil && float64(m.BytesOut)/elapsed > *m.spec.MaxBandwidth {
		return m.err("max_bandwidth")
	}

	if m.spec.MaxTokens != nil && m.scope.Exec.Total == nil {
		tok := *m.spec.MaxTokens
		m.scope.Exec.Total = &tok
		rem := tok
		m.scope.Exec.Remaining = &rem
	}

	if cost.Tokens > 0 {
		if err := m.scope.Consume(cost.Tokens); err != nil {
			return m.err("tokens")
		}
	}
	return nil
}
