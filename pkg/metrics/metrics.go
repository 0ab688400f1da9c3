// Package metrics defines the OpenTelemetry meter instruments the Vault
// exposes for mount state, query volume/latency, and verification
// outcomes, following the meter-per-package convention of
// pkg/lock's metrics.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const otelPackageName = "github.com/BigBirdReturns/axm-core/pkg/vault"

//nolint:gochecknoglobals
var (
	meter = otel.Meter(otelPackageName)

	mountsTotal       metric.Int64Counter
	queriesTotal      metric.Int64Counter
	queryDuration     metric.Float64Histogram
	mountedGauge      metric.Int64UpDownCounter
	verificationTotal metric.Int64Counter
)

//nolint:gochecknoinits
func init() {
	var err error

	mountsTotal, err = meter.Int64Counter(
		"axm_vault_mounts_total",
		metric.WithDescription("Total number of mount attempts"),
		metric.WithUnit("{mount}"),
	)
	if err != nil {
		panic(err)
	}

	queriesTotal, err = meter.Int64Counter(
		"axm_vault_queries_total",
		metric.WithDescription("Total number of query operations"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		panic(err)
	}

	queryDuration, err = meter.Float64Histogram(
		"axm_vault_query_duration_seconds",
		metric.WithDescription("Duration of query operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}

	mountedGauge, err = meter.Int64UpDownCounter(
		"axm_vault_mounted_shards",
		metric.WithDescription("Number of currently mounted shards (0 or 1)"),
		metric.WithUnit("{shard}"),
	)
	if err != nil {
		panic(err)
	}

	verificationTotal, err = meter.Int64Counter(
		"axm_vault_verifications_total",
		metric.WithDescription("Total number of verify_shard invocations by resulting trust level"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		panic(err)
	}
}

// RecordMount records a mount attempt and its outcome ("success" or
// "failure").
func RecordMount(ctx context.Context, result string) {
	mountsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordMounted adjusts the mounted-shard gauge by delta (+1 on mount,
// -1 on unmount).
func RecordMounted(ctx context.Context, delta int64) {
	mountedGauge.Add(ctx, delta)
}

// RecordQuery records a query operation's kind and duration.
func RecordQuery(ctx context.Context, kind string, duration time.Duration) {
	queriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordVerification records a verify_shard outcome by trust level.
func RecordVerification(ctx context.Context, trustLevel string) {
	verificationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("trust_level", trustLevel)))
}
