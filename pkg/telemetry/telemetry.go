// Package telemetry wires the tracer SPEC_FULL.md §2 promises around
// Session.Run and Dispatcher.Dispatch, grounded on the teacher's
// tools/internal/telemetry package but trimmed to the subset of the otel
// stack this module actually depends on: no OTLP exporter or meter, since
// this service's metrics are already served by prometheus/client_golang
// (internal/containerserver/metrics.go). Without Init, Tracer is the
// global no-op tracer, so every instrumented call site pays it no cost.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kagent-dev/codemode/pkg/env"
)

const tracerName = "github.com/kagent-dev/codemode"

// Tracer is the tracer Session.Run and Dispatcher.Dispatch start spans
// from. Reassigned by Init; read directly otherwise.
var Tracer trace.Tracer = otel.Tracer(tracerName)

// Init installs an in-process sdktrace provider when CODEMODE_TRACING_ENABLED
// is set, and returns a shutdown func safe to defer unconditionally. No
// exporter is attached — spans are sampled and recorded but stay local,
// since wiring a collector endpoint is an operator concern this service
// doesn't prescribe.
func Init(ctx context.Context) func() {
	if !env.TracingEnabled.Get() {
		return func() {}
	}
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	Tracer = otel.Tracer(tracerName)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}
}
