// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunLogin, RunConfirmTwoFactorSetup, RunRefresh, ...) accepts a
// typed dependency struct of funcs and interfaces and returns either a result or one of
// the host-supplied sentinel errors. The Engine builds the dependency sets once and
// keeps itself thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the user store, TOTP engine, secret cipher, attempt
// limiter, refresh ledger, audit emission and metrics. They own none of these
// resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the identity root package.
//   - Perform I/O directly; all I/O goes through dependencies.
package flows
