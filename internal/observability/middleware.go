package observability

import (
	"net/http"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware traces calls to the invoke route. Mount it on the route, not
// the mux: the {address} path value is only set once the pattern matched.
//
// The span continues the caller's trace from the request headers and records
// the address, the mode picked by X-Invocation-Type, the request id and any
// X-Function-Error the handler answered with.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := Tracer().Start(ctx, "POST "+wire.InvokePath,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				AttrAddress.String(r.PathValue("address")),
				AttrMode.String(string(InvocationMode(r.Header))),
				AttrRequestID.String(r.Header.Get(wire.HeaderRequestID)),
				AttrSurface.String("http"),
				attribute.Int64("tasklet.envelope_bytes", r.ContentLength),
			),
		)
		defer span.End()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rw.status))
		switch fe := rw.Header().Get(wire.HeaderFunctionError); {
		case rw.status >= 400:
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		case fe != "":
			span.SetAttributes(AttrFuncError.String(fe))
			span.SetStatus(codes.Error, "function error")
		}
	})
}

// InvocationMode maps the X-Invocation-Type header to the mode it requests.
func InvocationMode(h http.Header) domain.ExecutionMode {
	if h.Get(wire.HeaderInvocationType) == wire.InvocationEvent {
		return domain.ModeInvokeAsync
	}
	return domain.ModeInvoke
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
