package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/wire"
)

// HTTPTransport posts envelopes to an execution-side HTTP server.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithHTTPTimeout bounds a whole request, response body included.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.client.Timeout = d
		}
	}
}

// NewHTTPTransport targets the server at baseURL, e.g. "http://10.0.0.5:9000".
func NewHTTPTransport(baseURL string, opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) Name() string { return "http" }

func (t *HTTPTransport) Send(ctx context.Context, address string, req *wire.Request, mode domain.ExecutionMode) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := t.baseURL + "/functions/" + url.PathEscape(address) + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(wire.HeaderInvocationType, invocationType(mode))
	observability.InjectHTTP(ctx, httpReq.Header)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, wire.MaxEnvelopeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(respBody) > wire.MaxEnvelopeBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", wire.MaxEnvelopeBytes)
	}

	return &Reply{
		Status:        resp.StatusCode,
		FunctionError: resp.Header.Get(wire.HeaderFunctionError),
		Body:          respBody,
	}, nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func invocationType(mode domain.ExecutionMode) string {
	if mode == domain.ModeInvokeAsync {
		return wire.InvocationEvent
	}
	return wire.InvocationRequestResponse
}
