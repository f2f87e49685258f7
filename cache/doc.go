// Package cache provides the namespaced, TTL-aware key/value store backing
// session state. Two interchangeable backends implement the same Store
// contract: a bounded in-process cache with active eviction, and a Redis
// store that serializes values to JSON and delegates expiry to Redis.
//
// The contract is deliberately relaxed where strictness would buy nothing:
// GetOrLoad does not coordinate concurrent misses (two callers may both
// invoke the loader on a cold key), and a typed Get that finds a value of
// the wrong shape reports a miss instead of failing the request.
//
// # What this package must NOT do
//
//   - Interpret keys. Session-id semantics belong to the manager.
//   - Retry failed backend calls; the caller decides what a store outage means.
package cache
