package internaldefs

import (
	identity "github.com/Zukic98/NSI-2025-2026-Student-System-Management/identity"
)

// Series is one engine counter exported as a labelled sample of its family.
type Series struct {
	ID    identity.MetricID
	Value string
}

// CounterFamily is one exported counter name. Label is empty for families with a
// single unlabelled series.
type CounterFamily struct {
	Name   string
	Help   string
	Label  string
	Series []Series
}

type HistogramDef struct {
	ID   identity.MetricID
	Name string
	Help string
}

// CounterFamilies lists every exported counter in exposition order. Each engine
// counter appears in exactly one family.
var CounterFamilies = []CounterFamily{
	{
		Name:  "identity_logins_total",
		Help:  "Password logins by result.",
		Label: "result",
		Series: []Series{
			{ID: identity.MetricLoginSuccess, Value: "success"},
			{ID: identity.MetricLoginFailure, Value: "invalid_credentials"},
		},
	},
	{
		Name:  "identity_two_factor_setups_total",
		Help:  "Two-factor enrollments by stage.",
		Label: "stage",
		Series: []Series{
			{ID: identity.MetricTwoFactorSetupRequested, Value: "requested"},
			{ID: identity.MetricTwoFactorEnabled, Value: "enabled"},
		},
	},
	{
		Name:  "identity_two_factor_verifications_total",
		Help:  "Two-factor code checks by result.",
		Label: "result",
		Series: []Series{
			{ID: identity.MetricTwoFactorSuccess, Value: "success"},
			{ID: identity.MetricTwoFactorFailure, Value: "invalid_code"},
			{ID: identity.MetricTwoFactorRateLimited, Value: "rate_limited"},
		},
	},
	{
		Name:   "identity_tokens_issued_total",
		Help:   "Access and refresh token pairs issued after two-factor login.",
		Series: []Series{{ID: identity.MetricTokenIssued}},
	},
	{
		Name:  "identity_refreshes_total",
		Help:  "Refresh token presentations by result.",
		Label: "result",
		Series: []Series{
			{ID: identity.MetricRefreshSuccess, Value: "rotated"},
			{ID: identity.MetricRefreshFailure, Value: "rejected"},
			{ID: identity.MetricRefreshReplayDetected, Value: "replay"},
		},
	},
	{
		Name:   "identity_logouts_total",
		Help:   "Refresh token revocations on logout.",
		Series: []Series{{ID: identity.MetricLogout}},
	},
	{
		Name:   "identity_access_token_rejections_total",
		Help:   "Bearer access tokens that failed validation.",
		Series: []Series{{ID: identity.MetricAccessValidateFailure}},
	},
}

// Audit dispatcher drops are read from the engine directly, not from the snapshot.
const (
	AuditDroppedName = "identity_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var HistogramDefs = []HistogramDef{
	{ID: identity.MetricAccessValidateLatency, Name: "identity_access_validate_latency_seconds", Help: "Access token validation latency."},
}

// HistogramBounds are the upper bounds in seconds matching the engine buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
