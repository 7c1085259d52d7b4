package internaldefs

import (
	"magiclink"
)

// CounterDef binds a counter MetricID to its exported name and help text.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   magiclink.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram MetricID to its exported name and help text.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   magiclink.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the magic link engine.
var CounterDefs = []CounterDef{
	{ID: magiclink.MetricLinkCreated, Name: "magiclink_link_created_total", Help: "Created magic links."},
	{ID: magiclink.MetricLinkCreateRateLimited, Name: "magiclink_link_create_rate_limited_total", Help: "Rate-limited link creation attempts."},
	{ID: magiclink.MetricLinkSuperseded, Name: "magiclink_link_superseded_total", Help: "Links disabled because a newer link superseded them."},
	{ID: magiclink.MetricLoginAccepted, Name: "magiclink_login_accepted_total", Help: "Accepted link presentations."},
	{ID: magiclink.MetricLoginRejected, Name: "magiclink_login_rejected_total", Help: "Rejected link presentations."},
	{ID: magiclink.MetricLoginNotFound, Name: "magiclink_login_not_found_total", Help: "Presentations of unknown tokens."},
	{ID: magiclink.MetricLoginPrincipalMismatch, Name: "magiclink_login_principal_mismatch_total", Help: "Presentations whose principal did not match the link."},
	{ID: magiclink.MetricLoginExpired, Name: "magiclink_login_expired_total", Help: "Presentations of expired links."},
	{ID: magiclink.MetricLoginIPMismatch, Name: "magiclink_login_ip_mismatch_total", Help: "Presentations from a different network than the issuing request."},
	{ID: magiclink.MetricLoginBrowserMismatch, Name: "magiclink_login_browser_mismatch_total", Help: "Presentations without the issuing browser's binding cookie."},
	{ID: magiclink.MetricLoginTooManyUses, Name: "magiclink_login_too_many_uses_total", Help: "Presentations of disabled or exhausted links."},
	{ID: magiclink.MetricLoginRoleRejected, Name: "magiclink_login_role_rejected_total", Help: "Presentations rejected by superuser or staff policy."},
	{ID: magiclink.MetricRateLimitHit, Name: "magiclink_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: magiclink.MetricSessionCreated, Name: "magiclink_session_created_total", Help: "Created sessions."},
	{ID: magiclink.MetricSessionInvalidated, Name: "magiclink_session_invalidated_total", Help: "Invalidated sessions."},
}

// HistogramDefs is an exported constant or variable used by the magic link engine.
var HistogramDefs = []HistogramDef{
	{ID: magiclink.MetricValidateLatency, Name: "magiclink_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the magic link engine.
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

// NormalizeBuckets copies a raw snapshot bucket slice into the fixed-size
// bucket array, truncating or zero-filling as needed.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket observation counts into the cumulative
// form the Prometheus exposition format requires.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
