// Package tokenstore persists the session and tenant token scopes' balances
// between runs. The façade owns these scopes (§3): a capability's
// BudgetManager only ever sees an in-memory *int64 for the duration of one
// execution, so whatever remains afterward must be written back somewhere
// durable before the next execute() call can see it.
package tokenstore

import "context"

// Store loads and saves one token scope's remaining balance, keyed by scope
// id (a session id for the session scope, a tenant id for the tenant
// scope). Load's bool return is false when the key has never been saved —
// the façade treats that as "scope starts unbounded", not as a zero
// balance.
type Store interface {
	Load(ctx context.Context, key string) (balance int64, found bool, err error)
	Save(ctx context.Context, key string, balance int64) error
}
