// Package otel exposes identity engine counters and histograms as OpenTelemetry
// instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter family,
// with the family label carried as an attribute, and an Int64ObservableGauge
// per histogram bucket. One callback reads
// [identity.Engine.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
