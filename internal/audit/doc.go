// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers. Channel, JSON writer, zap, Kafka and
//     no-op implementations are provided; [MultiSink] fans out to several.
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, tenant, IP, metadata.
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; the Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import the identity root package or any sibling internal package.
//   - Carry token values, passwords or two-factor secrets in events.
package audit
