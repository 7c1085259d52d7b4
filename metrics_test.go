package magiclink

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMetricsDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Inc(MetricLinkCreated)
	if m.Value(MetricLinkCreated) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("expected metrics disabled")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLinkCreated)
	nilMetrics.Observe(MetricValidateLatency, time.Millisecond)
	if nilMetrics.Value(MetricLinkCreated) != 0 {
		t.Fatal("nil metrics must be a safe no-op")
	}
}

func TestMetricsCountValidationOutcomes(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())
	engine.metrics = NewMetrics(MetricsConfig{Enabled: true})

	link, err := engine.CreateLink(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if engine.metrics.Value(MetricLinkCreated) != 1 {
		t.Fatalf("expected one created link counted, got %d", engine.metrics.Value(MetricLinkCreated))
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}); err != nil {
		t.Fatalf("ValidateLink failed: %v", err)
	}
	if engine.metrics.Value(MetricLoginAccepted) != 1 {
		t.Fatalf("expected one accepted login counted, got %d", engine.metrics.Value(MetricLoginAccepted))
	}

	if _, err := engine.ValidateLink(ctx, VerifyRequest{
		Token:       link.Token,
		Principal:   "alice@example.com",
		CookieValue: link.CookieValue,
	}); !errors.Is(err, ErrTooManyUses) {
		t.Fatalf("expected ErrTooManyUses, got %v", err)
	}
	if engine.metrics.Value(MetricLoginRejected) != 1 || engine.metrics.Value(MetricLoginTooManyUses) != 1 {
		t.Fatalf("expected the replay to be counted as rejected/too-many-uses, got rejected=%d too_many=%d",
			engine.metrics.Value(MetricLoginRejected), engine.metrics.Value(MetricLoginTooManyUses))
	}
}

func TestMetricsRateLimitCounter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	cfg := testLinkConfig()
	cfg.Link.LoginRequestTimeLimit = 30 * time.Second
	engine := newTestLinkEngine(t, rdb, aliceProvider(), cfg)
	engine.metrics = NewMetrics(MetricsConfig{Enabled: true})

	if _, err := engine.CreateLink(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if _, err := engine.CreateLink(ctx, "alice@example.com", ""); !errors.Is(err, ErrCreateRateLimited) {
		t.Fatalf("expected ErrCreateRateLimited, got %v", err)
	}

	if engine.metrics.Value(MetricLinkCreateRateLimited) != 1 || engine.metrics.Value(MetricRateLimitHit) != 1 {
		t.Fatalf("expected the throttled create to be counted, got create=%d hit=%d",
			engine.metrics.Value(MetricLinkCreateRateLimited), engine.metrics.Value(MetricRateLimitHit))
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine := newTestLinkEngine(t, rdb, aliceProvider(), testLinkConfig())
	engine.metrics = NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	if _, err := engine.ValidateLink(ctx, VerifyRequest{Token: "never-issued"}); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}

	snapshot := engine.MetricsSnapshot()
	buckets, ok := snapshot.Histograms[MetricValidateLatency]
	if !ok {
		t.Fatal("expected a validate latency histogram")
	}
	total := uint64(0)
	for _, b := range buckets {
		total += b
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
}

func TestMetricsSnapshotIndependent(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLinkCreated)

	snap := m.Snapshot()
	snap.Counters[MetricLinkCreated] = 99

	if m.Value(MetricLinkCreated) != 1 {
		t.Fatal("expected snapshot mutation to not affect live counters")
	}
}
