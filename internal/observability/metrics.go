package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "collabtask-authcore"

type coreMetrics struct {
	tokenOpCounter     metric.Int64Counter
	revocationCounter  metric.Int64Counter
	aclDecisionCounter metric.Int64Counter
	lockCounter        metric.Int64Counter
	idempotencyCounter metric.Int64Counter
	repoCounter        metric.Int64Counter
}

var (
	metricsMu   sync.RWMutex
	metricsInst *coreMetrics
)

type MetricsConfig struct {
	Enabled        bool
	Endpoint       string
	Insecure       bool
	ServiceName    string
	Environment    string
	ExportInterval int // seconds
}

func InitMetrics(ctx context.Context, cfg MetricsConfig, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(mp)

	if err := registerCoreMetrics(mp.Meter(meterName)); err != nil {
		return nil, err
	}
	logger.Info("otel metrics initialized", "endpoint", cfg.Endpoint)
	return mp, nil
}

func registerCoreMetrics(meter metric.Meter) error {
	tokenOps, err := meter.Int64Counter("auth.token.operations")
	if err != nil {
		return err
	}
	revocations, err := meter.Int64Counter("auth.revocation.checks")
	if err != nil {
		return err
	}
	aclDecisions, err := meter.Int64Counter("acl.check.decisions")
	if err != nil {
		return err
	}
	locks, err := meter.Int64Counter("lock.acquire.attempts")
	if err != nil {
		return err
	}
	idempotency, err := meter.Int64Counter("idempotency.begin.events")
	if err != nil {
		return err
	}
	repoOps, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return err
	}

	metricsMu.Lock()
	metricsInst = &coreMetrics{
		tokenOpCounter:     tokenOps,
		revocationCounter:  revocations,
		aclDecisionCounter: aclDecisions,
		lockCounter:        locks,
		idempotencyCounter: idempotency,
		repoCounter:        repoOps,
	}
	metricsMu.Unlock()
	return nil
}

func current() *coreMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metricsInst
}

func RecordTokenOperation(ctx context.Context, op, status string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("status", status),
	))
}

// RecordRevocationCheck counts revocation lookups by answering layer
// (cache or store) and result.
func RecordRevocationCheck(ctx context.Context, source, result string) {
	m := current()
	if m == nil {
		return
	}
	m.revocationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("result", result),
	))
}

func RecordACLDecision(ctx context.Context, resourceType, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.aclDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", resourceType),
		attribute.String("decision", decision),
	))
}

func RecordLockAcquisition(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.lockCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordIdempotencyEvent(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.idempotencyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, status string) {
	m := current()
	if m == nil {
		return
	}
	m.repoCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}
