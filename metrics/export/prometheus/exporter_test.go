package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

type fakeSource struct {
	snapshot identity.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() identity.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                    { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters:   map[identity.MetricID]uint64{},
			Histograms: map[identity.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters: map[identity.MetricID]uint64{
				identity.MetricLoginSuccess: 7,
			},
			Histograms: map[identity.MetricID][]uint64{
				identity.MetricAccessValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "identity_logins_total{result=\"success\"} 7") {
		t.Fatalf("expected successful login series in output, got:\n%s", out)
	}
	if !strings.Contains(out, "identity_logins_total{result=\"invalid_credentials\"} 0") {
		t.Fatalf("expected zero-valued failure series in output, got:\n%s", out)
	}
	if n := strings.Count(out, "# TYPE identity_logins_total counter"); n != 1 {
		t.Fatalf("expected one TYPE line for the login family, got %d", n)
	}
	if !strings.Contains(out, "identity_tokens_issued_total 0\n") {
		t.Fatalf("expected unlabelled tokens issued counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "identity_access_validate_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "identity_access_validate_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "identity_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters:   map[identity.MetricID]uint64{identity.MetricLoginSuccess: 1},
			Histograms: map[identity.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderRefreshFamilyCarriesEveryResult(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters: map[identity.MetricID]uint64{
				identity.MetricRefreshSuccess:        5,
				identity.MetricRefreshFailure:        2,
				identity.MetricRefreshReplayDetected: 1,
			},
			Histograms: map[identity.MetricID][]uint64{},
		},
	})

	out := exp.Render()
	for _, want := range []string{
		"identity_refreshes_total{result=\"rotated\"} 5",
		"identity_refreshes_total{result=\"rejected\"} 2",
		"identity_refreshes_total{result=\"replay\"} 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: identity.MetricsSnapshot{
			Counters: map[identity.MetricID]uint64{
				identity.MetricLoginSuccess:          1000,
				identity.MetricLoginFailure:          40,
				identity.MetricTwoFactorSuccess:      800,
				identity.MetricTwoFactorFailure:      20,
				identity.MetricTokenIssued:           800,
				identity.MetricRefreshSuccess:        800,
				identity.MetricRefreshFailure:        10,
				identity.MetricRefreshReplayDetected: 3,
			},
			Histograms: map[identity.MetricID][]uint64{
				identity.MetricAccessValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
