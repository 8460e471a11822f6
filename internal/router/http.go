package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/metrics"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/wire"
)

// HTTPHandler serves the invoke endpoint plus /healthz, /functions, /metrics
// and /stats.
func (r *Router) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+wire.InvokePath, observability.HTTPMiddleware(http.HandlerFunc(r.handleInvoke)))
	mux.HandleFunc("GET /functions", r.handleList)
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.Handle("GET /metrics", metrics.PrometheusHandler())
	mux.Handle("GET /stats", metrics.JSONHandler())
	return mux
}

func (r *Router) handleInvoke(w http.ResponseWriter, req *http.Request) {
	c := call{
		surface:   "http",
		address:   req.PathValue("address"),
		requestID: req.Header.Get(wire.HeaderRequestID),
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, wire.MaxEnvelopeBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > wire.MaxEnvelopeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request envelope too large")
		return
	}
	envelope, err := wire.DecodeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if observability.InvocationMode(req.Header) == domain.ModeInvokeAsync {
		if err := r.serveAsync(req.Context(), c, envelope); err != nil {
			writeRouteError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp, err := r.serveInvoke(req.Context(), c, envelope)
	if err != nil {
		writeRouteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleList(w http.ResponseWriter, req *http.Request) {
	type fn struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	}
	out := make([]fn, 0, len(r.tasks))
	for _, a := range r.Addresses() {
		out = append(out, fn{Address: a, Name: r.tasks[a].Name()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "functions": len(r.tasks)})
}

// writeRouteError maps a routing failure to the response the HTTP transport
// expects: 404 and 400 for caller mistakes, a function error otherwise.
func writeRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownFunction):
		writeError(w, http.StatusNotFound, err.Error())
	case wire.ErrMalformed(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		w.Header().Set(wire.HeaderFunctionError, wire.FunctionErrorUnhandled)
		writeError(w, http.StatusOK, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorBody{ErrorMessage: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Op().Debug("write response", "error", err)
	}
}
