// Package prometheus renders identity engine metrics in the Prometheus text
// exposition format.
//
// Counters are grouped into identity_*_total families keyed by a result or
// stage label, for example identity_refreshes_total{result="replay"}. The
// single histogram is identity_access_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into a global registry. Callers mount [PrometheusExporter.Handler].
//   - Mutate engine state.
package prometheus
