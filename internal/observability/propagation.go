package observability

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// TraceContext holds W3C trace context fields for transports without headers
// (Redis messages).
type TraceContext struct {
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

// ExtractTraceContext extracts trace context from a context for propagation.
func ExtractTraceContext(ctx context.Context) TraceContext {
	if !Enabled() {
		return TraceContext{}
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	return TraceContext{
		TraceParent: carrier.Get("traceparent"),
		TraceState:  carrier.Get("tracestate"),
	}
}

// InjectTraceContext injects trace context from TraceContext into a context.
func InjectTraceContext(ctx context.Context, tc TraceContext) context.Context {
	if tc.TraceParent == "" {
		return ctx
	}

	carrier := propagation.MapCarrier{
		"traceparent": tc.TraceParent,
		"tracestate":  tc.TraceState,
	}

	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectHTTP writes the trace context of ctx into outgoing request headers.
func InjectHTTP(ctx context.Context, h http.Header) {
	if !Enabled() {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// OutgoingGRPC returns ctx with its trace context appended to outgoing gRPC
// metadata.
func OutgoingGRPC(ctx context.Context) context.Context {
	tc := ExtractTraceContext(ctx)
	if tc.TraceParent == "" {
		return ctx
	}
	kv := []string{"traceparent", tc.TraceParent}
	if tc.TraceState != "" {
		kv = append(kv, "tracestate", tc.TraceState)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// IncomingGRPC restores the trace context carried by incoming gRPC metadata.
func IncomingGRPC(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	var tc TraceContext
	if v := md.Get("traceparent"); len(v) > 0 {
		tc.TraceParent = v[0]
	}
	if v := md.Get("tracestate"); len(v) > 0 {
		tc.TraceState = v[0]
	}
	return InjectTraceContext(ctx, tc)
}

// GetTraceID returns the trace ID from context as a string.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().HasTraceID() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
