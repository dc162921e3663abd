// Package limiters counts failed two-factor verifications per (flow, user).
//
// # Limiters
//
//   - [MemoryAttemptLimiter] keeps windows in a sync.Map updated by compare-and-swap.
//   - [RedisAttemptLimiter] shares windows across instances through a Lua script.
//
// Both default to 5 failures per 5-minute window measured from the first failure.
//
// # What this package must NOT do
//
//   - Import the identity root package or any sibling internal package.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
