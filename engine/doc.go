// Package engine implements the funds movement engine: the orchestration of
// validation, atomic mutation, cache invalidation, and side-effect dispatch
// for deposit, withdrawal, and transfer operations.
//
// The engine holds no locks and keeps no mutable state between requests. The
// only correctness boundary is the ledger store's conditional atomic update:
// the balance precondition is part of the write predicate, so concurrent
// movements against the same account serialize in storage, never in process.
//
// Collaborators are injected through the AccountStore, LedgerStore, Cache,
// and Dispatcher interfaces. The cache and dispatcher are strictly
// best-effort: their failures are logged and swallowed, never surfaced to
// the caller and never able to roll back a committed movement.
package engine
