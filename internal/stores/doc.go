// Package stores provides the Redis-backed record store for issued magic
// links.
//
// # Design
//
// The store persists a versioned, binary-encoded record per link, keyed by a
// hash of the raw token. Mutation operations (Consume, Disable) use
// WATCH/MULTI optimistic transactions with automatic retry on contention, so
// two concurrent presentations of a single-use link can never both succeed.
// Records are never deleted on consumption; they are flipped to disabled and
// retained under a TTL for audit. Cookie comparisons use constant-time
// compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for link records. It
// does NOT generate tokens or cookie values, enforce creation rate limits,
// or resolve accounts — those responsibilities belong to the flow functions
// in internal/flows.
//
// # What this package must NOT do
//
//   - Import magiclink or any sibling internal package.
//   - Store or log raw token values; only token hashes reach Redis.
//   - Use non-constant-time comparisons for cookie matching.
package stores
