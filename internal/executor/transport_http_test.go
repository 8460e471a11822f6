package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
)

func TestHTTPTransportSend(t *testing.T) {
	var gotPath, gotType string
	var gotReq wire.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get(wire.HeaderInvocationType)
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotReq)

		if gotType == wire.InvocationEvent {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		json.NewEncoder(w).Encode(wire.NewResponse(&wire.Outcome{Result: []byte("5")}))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL + "/")
	reply, err := tr.Send(context.Background(), "demo-add", wire.NewRequest([]byte("args")), domain.ModeInvoke)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/functions/demo-add/invoke" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotType != wire.InvocationRequestResponse {
		t.Fatalf("invocation type = %q", gotType)
	}
	if args, _ := gotReq.Args(); string(args) != "args" {
		t.Fatalf("server got args %q", args)
	}
	if reply.Status != http.StatusOK {
		t.Fatalf("Status = %d", reply.Status)
	}

	reply, err = tr.Send(context.Background(), "demo-add", wire.NewRequest(nil), domain.ModeInvokeAsync)
	if err != nil {
		t.Fatalf("Send async: %v", err)
	}
	if reply.Status != http.StatusAccepted {
		t.Fatalf("async Status = %d", reply.Status)
	}
}

func TestHTTPTransportFunctionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(wire.HeaderFunctionError, wire.FunctionErrorUnhandled)
		json.NewEncoder(w).Encode(wire.ErrorBody{ErrorMessage: "bad args"})
	}))
	defer srv.Close()

	reply, err := NewHTTPTransport(srv.URL).Send(context.Background(), "demo-add", wire.NewRequest(nil), domain.ModeInvoke)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.FunctionError != wire.FunctionErrorUnhandled || wire.ErrorMessage(reply.Body) != "bad args" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := NewHTTPTransport(url).Send(context.Background(), "demo-add", wire.NewRequest(nil), domain.ModeInvoke); err == nil {
		t.Fatal("expected error from closed server")
	}
}
