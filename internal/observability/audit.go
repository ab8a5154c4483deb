package observability

import (
	"context"
	"log/slog"
)

// Audit emits a structured audit log line. Durable audit rows live in the
// audit repository; this is the operator-facing mirror.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
