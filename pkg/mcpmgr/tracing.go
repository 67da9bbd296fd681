package mcpmgr

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vikashloomba/mcp-fleet-go/pkg/mcpmgr"

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

func startConnectSpan(ctx context.Context, tracer trace.Tracer, server string, cfg ServerConfig) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("mcp.server", server),
		attribute.String("mcp.config", string(TransportOf(cfg))),
	}
	if u, ok := AsURL(cfg); ok {
		attrs = append(attrs, attribute.String("mcp.transport.requested", string(u.Transport)))
	}
	return tracer.Start(ctx, "mcpmgr.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func finishConnectSpan(span trace.Span, out *Outcome) {
	defer span.End()
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(attribute.String("mcp.transport", string(out.Transport)))
	if len(out.Notices) > 0 {
		span.SetAttributes(attribute.StringSlice("mcp.notices", out.Notices))
	}
	if out.Failure != nil {
		span.SetAttributes(attribute.String("mcp.failure", string(out.Failure.Kind)))
		span.RecordError(out.Failure)
		span.SetStatus(codes.Error, out.Failure.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// traceEvent adds a named event to the span carried by ctx, if any.
func traceEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}
