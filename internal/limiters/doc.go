// Package limiters provides the Redis-backed creation throttle for magic
// links.
//
// # Limiters
//
//   - [CreateLimiter] — per-principal spacing window for link creation, with
//     an optional per-IP throttle.
//
// The limiter is nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// The limiter owns its own Redis key namespace and error types. Policy
// thresholds come from a Config struct supplied at construction time.
//
// # What this package must NOT do
//
//   - Import magiclink or any sibling internal package.
//   - Make policy decisions beyond counting — flow functions decide
//     consequences.
package limiters
