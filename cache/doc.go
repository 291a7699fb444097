// Package cache provides a best-effort Redis read-through cache for account
// snapshots and idempotency markers.
//
// The cache is never authoritative: every write decision is made against the
// store, and a cache outage degrades reads to store lookups instead of
// failing movements. A circuit breaker stops the engine from paying Redis
// timeouts on every operation while the server is down.
package cache
