package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadEventsOnce    sync.Once
	loadEventsCounter metric.Int64Counter
)

// recordLoadEvent counts one Load outcome, labelled with the setting family
// that rejected when validation failed.
func recordLoadEvent(ctx context.Context, profile, outcome string, err error) {
	loadEventsOnce.Do(func() {
		counter, cerr := otel.Meter("collabtask-authcore").Int64Counter("config.load.events")
		if cerr == nil {
			loadEventsCounter = counter
		}
	})
	if loadEventsCounter == nil {
		return
	}
	loadEventsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeProfile(profile)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
	))
}

func normalizeProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	return v
}

// classifyLoadError buckets Validate failures by the setting family named in
// the message: database wiring, token TTL arithmetic, cleanup bounds, or the
// lock and storage timeouts.
func classifyLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "DB_DRIVER"):
		return "driver"
	case strings.Contains(msg, "DB_DSN"):
		return "dsn"
	case strings.Contains(msg, "TTL"):
		return "ttl"
	case strings.Contains(msg, "cleanup"):
		return "cleanup"
	case strings.Contains(msg, "TIMEOUT"), strings.Contains(msg, "LEASE"):
		return "timeout"
	default:
		return "load"
	}
}
