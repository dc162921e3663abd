package identity

import (
	"testing"
	"time"
)

// refreshPathMetricIDs are the counters touched by one refresh request and the
// bearer checks that follow it.
var refreshPathMetricIDs = [...]MetricID{
	MetricRefreshSuccess,
	MetricTokenIssued,
	MetricAccessValidateFailure,
	MetricRefreshFailure,
}

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricRefreshSuccess)
	}
}

func BenchmarkMetricsIncDisabled(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricRefreshSuccess)
	}
}

func BenchmarkMetricsRefreshPathParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 2 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(refreshPathMetricIDs[idx])
			m.Observe(MetricAccessValidateLatency, d)
			idx++
			if idx == len(refreshPathMetricIDs) {
				idx = 0
			}
		}
	})
}

func BenchmarkMetricsSnapshot(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	for _, id := range refreshPathMetricIDs {
		m.Inc(id)
	}
	m.Observe(MetricAccessValidateLatency, 7*time.Millisecond)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}
