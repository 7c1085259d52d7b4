// Package magiclink provides a passwordless "magic link" authentication engine:
// single-use (or bounded-use) login URLs with expiry, IP and browser binding,
// Redis-backed persistence, and session establishment on successful login.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// magiclink is the public surface. It exposes [Engine], [Builder], [Config], and
// value types (Link, LoginResult, AuditEvent, etc.). All internal coordination —
// flow orchestration, record encoding, rate limiting, audit dispatch — lives under
// internal/ and is never exported. The HTTP login surface lives in the httpapi
// sub-package and consumes only the public Engine API.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Echo raw tokens or binding-cookie values in errors or audit events.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Security contract
//
// ValidateLink is a terminal security decision. A rejected presentation disables
// the link and is never retried transparently; consumption is charged on every
// identity-confirmed attempt so the total number of guesses per link is bounded.
// Two concurrent validations of a one-use token cannot both succeed: per-token
// mutation is serialized through optimistic compare-and-swap on the record.
package magiclink
