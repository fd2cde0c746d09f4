// Package tracing wires an OTLP/gRPC otel exporter exactly as the teacher
// does, plus one addition: CommandSpan, a span wrapper for one daemon
// command (E4). No package in this repository calls CommandSpan, so the
// commands the event loop processes produce no spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"

	"github.com/flowgrind/flowgrind/internal/logging"
)

// InitTracer initializes the global TracerProvider with an OTLP/gRPC
// batch exporter pointed at endpoint, tagged with serviceName ("flowgrindd"
// or "flowgrind"). Failure to reach the collector is logged and otherwise
// ignored: tracing is an ambient concern that must never block startup.
func InitTracer(serviceName, endpoint string) {
	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		logging.Logger.Warnf("Failed to initialize tracing exporter: %v", err)
		return
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)

	logging.Logger.Debugf("Tracing initialized for service %s with endpoint %s", serviceName, endpoint)
}

// CommandSpan starts a span named "flowgrind.command" tagged with the
// command's name, for use around one daemon.Command's full submit/process/
// complete round trip. The caller must call the returned function when the
// command completes.
func CommandSpan(ctx context.Context, command string) (context.Context, func()) {
	tracer := otel.Tracer("flowgrindd")
	ctx, span := tracer.Start(ctx, "flowgrind.command", trace.WithAttributes(
		attribute.String("flowgrind.command", command),
	))
	return ctx, func() { span.End() }
}
