package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/metadata"
)

func initDiscard(t *testing.T) {
	t.Helper()
	if err := Init(context.Background(), Config{Enabled: true, Exporter: ExporterNone, Instance: "obs-test", SampleRate: 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		Shutdown(context.Background())
		Init(context.Background(), Config{})
	})
}

// recordSpans routes spans into an in-memory recorder.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTextMapPropagator(propagation.TraceContext{})
	global = &provider{tp: tp, tracer: tp.Tracer(serviceName), enabled: true}
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		global = disabled()
	})
	return rec
}

func TestSpansWithoutInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	if GetTraceID(ctx) != "" {
		t.Fatal("disabled tracer produced a trace id")
	}
}

func TestUnknownExporter(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	if Enabled() {
		t.Fatal("failed Init left tracing enabled")
	}
}

func TestHTTPPropagation(t *testing.T) {
	initDiscard(t)

	ctx, span := StartClientSpan(context.Background(), "dispatch")
	defer span.End()
	want := GetTraceID(ctx)
	if want == "" {
		t.Fatal("no trace id on client span")
	}

	var got string
	mux := http.NewServeMux()
	mux.Handle("POST "+wire.InvokePath, HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetTraceID(r.Context())
	})))
	req := httptest.NewRequest(http.MethodPost, "/functions/x/invoke", nil)
	InjectHTTP(ctx, req.Header)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	if got != want {
		t.Fatalf("server trace id = %q, want %q", got, want)
	}
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestHTTPMiddlewareRecordsInvocation(t *testing.T) {
	rec := recordSpans(t)

	mux := http.NewServeMux()
	mux.Handle("POST "+wire.InvokePath, HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("address") == "broken" {
			w.Header().Set(wire.HeaderFunctionError, wire.FunctionErrorUnhandled)
		}
		if InvocationMode(r.Header) == domain.ModeInvokeAsync {
			w.WriteHeader(http.StatusAccepted)
		}
	})))

	req := httptest.NewRequest(http.MethodPost, "/functions/demo-add/invoke", nil)
	req.Header.Set(wire.HeaderInvocationType, wire.InvocationEvent)
	req.Header.Set(wire.HeaderRequestID, "req-1")
	mux.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/functions/broken/invoke", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}

	first := spanAttrs(spans[0])
	if first[AttrAddress].AsString() != "demo-add" {
		t.Fatalf("address = %q", first[AttrAddress].AsString())
	}
	if first[AttrMode].AsString() != string(domain.ModeInvokeAsync) {
		t.Fatalf("mode = %q", first[AttrMode].AsString())
	}
	if first[AttrRequestID].AsString() != "req-1" {
		t.Fatalf("request id = %q", first[AttrRequestID].AsString())
	}
	if first["http.response.status_code"].AsInt64() != http.StatusAccepted {
		t.Fatalf("status = %v", first["http.response.status_code"])
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatal("accepted call marked as error")
	}

	second := spanAttrs(spans[1])
	if second[AttrMode].AsString() != string(domain.ModeInvoke) {
		t.Fatalf("mode = %q", second[AttrMode].AsString())
	}
	if second[AttrFuncError].AsString() != wire.FunctionErrorUnhandled || spans[1].Status().Code != codes.Error {
		t.Fatalf("function error not recorded: %v %v", second[AttrFuncError], spans[1].Status())
	}
}

func TestGRPCPropagation(t *testing.T) {
	initDiscard(t)

	ctx, span := StartClientSpan(context.Background(), "dispatch")
	defer span.End()

	out := OutgoingGRPC(ctx)
	md, ok := metadata.FromOutgoingContext(out)
	if !ok || len(md.Get("traceparent")) == 0 {
		t.Fatal("traceparent not in outgoing metadata")
	}

	in := IncomingGRPC(metadata.NewIncomingContext(context.Background(), md))
	if GetTraceID(in) != GetTraceID(ctx) {
		t.Fatal("trace id lost across metadata")
	}
}
