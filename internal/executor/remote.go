package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/tasklet/internal/circuitbreaker"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
)

// Reply is what a transport got back from the execution side, before any
// interpretation.
type Reply struct {
	// Status uses HTTP codes: 200 for a completed invoke, 202 for an accepted
	// async invoke.
	Status int
	// FunctionError is non-empty when the execution side could not run the
	// function at all.
	FunctionError string
	Body          []byte
}

// Transport carries a request envelope to the named function.
type Transport interface {
	Name() string
	Send(ctx context.Context, address string, req *wire.Request, mode domain.ExecutionMode) (*Reply, error)
	Close() error
}

// RemoteExecutor dispatches calls through a Transport. It offers Invoke and
// InvokeAsync; Queue and Delay are not supported.
type RemoteExecutor struct {
	transport      Transport
	closeTransport bool
	breakers       *circuitbreaker.Registry
}

// NewRemote returns a RemoteExecutor over t.
func NewRemote(t Transport, opts ...RemoteOption) *RemoteExecutor {
	e := &RemoteExecutor{transport: t}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RemoteExecutor) Kind() Kind { return KindRemote }
func (e *RemoteExecutor) sealed()    {}

// TransportName names the underlying transport.
func (e *RemoteExecutor) TransportName() string {
	return e.transport.Name()
}

// Invoke sends the call and waits for the response envelope.
func (e *RemoteExecutor) Invoke(ctx context.Context, t Target, packedArgs []byte) (*wire.Outcome, error) {
	reply, err := e.send(ctx, t, packedArgs, domain.ModeInvoke, wire.StatusOK)
	if err != nil {
		return nil, err
	}

	resp, err := wire.DecodeResponse(reply.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInternal, t.Name(), err)
	}
	out, err := resp.Outcome()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInternal, t.Name(), err)
	}
	return out, nil
}

// InvokeAsync sends the call as an event. The response body is ignored.
func (e *RemoteExecutor) InvokeAsync(ctx context.Context, t Target, packedArgs []byte) error {
	_, err := e.send(ctx, t, packedArgs, domain.ModeInvokeAsync, wire.StatusAccepted)
	return err
}

// Queue is not supported by the remote executor.
func (e *RemoteExecutor) Queue(ctx context.Context, t Target, packedArgs []byte) error {
	return fmt.Errorf("%w: queue is not available on the remote executor", domain.ErrNotSupported)
}

// Delay is not supported by the remote executor.
func (e *RemoteExecutor) Delay(ctx context.Context, t Target, packedArgs []byte, d time.Duration) error {
	return fmt.Errorf("%w: delay is not available on the remote executor", domain.ErrNotSupported)
}

// Close releases the transport if the executor owns it.
func (e *RemoteExecutor) Close() error {
	if e.closeTransport {
		return e.transport.Close()
	}
	return nil
}

// BreakerStates maps each address sent to so far to its breaker state. It is
// nil when no circuit breaker is configured.
func (e *RemoteExecutor) BreakerStates() map[string]string {
	return e.breakers.Snapshot()
}

func (e *RemoteExecutor) send(ctx context.Context, t Target, packedArgs []byte, mode domain.ExecutionMode, want int) (*Reply, error) {
	if err := e.breakers.Allow(t.Address()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInternal, t.Name(), err)
	}
	reply, err := e.transport.Send(ctx, t.Address(), wire.NewRequest(packedArgs), mode)
	e.breakers.Record(t.Address(), err == nil && reply.FunctionError == "" && reply.Status == want)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s transport: %v", domain.ErrInternal, t.Name(), e.transport.Name(), err)
	}
	if reply.FunctionError != "" {
		return nil, fmt.Errorf("%w: %s failed on the execution side (%s): %s",
			domain.ErrInternal, t.Name(), reply.FunctionError, wire.ErrorMessage(reply.Body))
	}
	if reply.Status != want {
		return nil, fmt.Errorf("%w: %s: unexpected status %d (want %d): %s",
			domain.ErrInternal, t.Name(), reply.Status, want, wire.ErrorMessage(reply.Body))
	}
	return reply, nil
}
