package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sandeepkv93/engine-service-portal/internal/config"
)

func recordEveryHelper(ctx context.Context) {
	RecordAuthFlowEvent(ctx, "login", "success")
	RecordAuthRequestDuration(ctx, "login", "success", 10*time.Millisecond)
	RecordTokenValidation(ctx, "expired")
	RecordTokenRevocation(ctx, "redis", "success")
	RecordRateLimitDecision(ctx, "auth", "allow", "fail_closed", "ip")
	RecordRateLimitRetryAfter(ctx, "auth", "window", time.Second)
	RecordAuthAbuseGuardEvent(ctx, "login", "check", "blocked")
	RecordAuthAbuseCooldown(ctx, "login", "check", time.Second)
	RecordHealthCheckResult(ctx, "db", "ready")
	RecordHealthCheckDuration(ctx, "db", 5*time.Millisecond)
	RecordDatabaseStartupEvent(ctx, "connect", "success")
	RecordDatabaseStartupDuration(ctx, "migrate", 15*time.Millisecond)
	RecordRepositoryOperation(ctx, "credential", "create", "conflict")
}

func TestRecordMetricHelpersNoPanicWhenUninitialized(t *testing.T) {
	SetAppMetrics(nil)
	recordEveryHelper(context.Background())
}

func TestRecordMetricHelpersEmitExpectedLabelCardinality(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	m, err := NewAppMetrics(provider.Meter("observability-test"))
	if err != nil {
		t.Fatalf("new app metrics: %v", err)
	}
	SetAppMetrics(m)
	defer SetAppMetrics(nil)

	recordEveryHelper(ctx)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	expected := map[string]int{
		"auth.flow.events":             2,
		"auth.request.duration":        2,
		"auth.token.validation.events": 1,
		"auth.token.revocations":       2,
		"http.rate_limit.decisions":    4,
		"http.rate_limit.retry_after":  2,
		"auth.abuse_guard.events":      3,
		"auth.abuse_guard.cooldown":    2,
		"health.check.results":         2,
		"health.check.duration":        1,
		"database.startup.events":      2,
		"database.startup.duration":    1,
		"repository.operations":        3,
	}

	observed := collectLabelCardinality(t, rm)
	for metricName, want := range expected {
		got, ok := observed[metricName]
		if !ok {
			t.Fatalf("missing metric datapoint for %s", metricName)
		}
		if got != want {
			t.Fatalf("metric %s label cardinality mismatch: got=%d want=%d", metricName, got, want)
		}
	}
}

func TestInitMetricsDisabledReturnsProvider(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{OTELMetricsEnabled: false}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("init metrics disabled: %v", err)
	}
	if mp == nil {
		t.Fatal("expected non-nil meter provider")
	}
	_ = mp.Shutdown(ctx)
}

func collectLabelCardinality(t *testing.T, rm metricdata.ResourceMetrics) map[string]int {
	t.Helper()
	out := map[string]int{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			case metricdata.Histogram[float64]:
				if len(data.DataPoints) > 0 {
					out[m.Name] = data.DataPoints[0].Attributes.Len()
				}
			}
		}
	}
	return out
}
