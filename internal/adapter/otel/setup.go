// Package otel provides metric instruments, span helpers, and HTTP
// instrumentation. Exporter wiring is deferred; without an SDK installed
// the instruments are no-ops, so call sites stay unconditional.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Exporter and provider
// configuration will land here once a collector endpoint exists.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Info("otel tracer initialized without exporter", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}
