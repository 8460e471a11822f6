package executor

import (
	"context"
	"errors"

	"github.com/oriys/tasklet/internal/circuitbreaker"
	"github.com/oriys/tasklet/internal/logging"
)

// LocalOption configures a LocalExecutor.
type LocalOption func(*LocalExecutor)

// WithDropHandler sets the callback for fire-and-forget calls (async, queued,
// delayed) that raised or failed. Their outcome has no other destination. The
// default logs at debug level.
func WithDropHandler(h func(ctx context.Context, t Target, err error)) LocalOption {
	return func(e *LocalExecutor) {
		if h != nil {
			e.onDrop = h
		}
	}
}

// RemoteOption configures a RemoteExecutor.
type RemoteOption func(*RemoteExecutor)

// WithCloseTransport makes Close on the executor close its transport.
func WithCloseTransport(close bool) RemoteOption {
	return func(e *RemoteExecutor) {
		e.closeTransport = close
	}
}

// WithCircuitBreaker stops sending to an address whose recent sends failed at
// the transport level. The zero Config leaves breaking off.
func WithCircuitBreaker(cfg circuitbreaker.Config) RemoteOption {
	return func(e *RemoteExecutor) {
		e.breakers = circuitbreaker.NewRegistry(cfg)
	}
}

func logDropped(ctx context.Context, t Target, err error) {
	logging.OpContext(ctx).Debug("fire-and-forget call failed",
		"task", t.Name(), "address", t.Address(), "error", err)
}

// runDetached runs one fire-and-forget call and routes its failure to onDrop.
func (e *LocalExecutor) runDetached(ctx context.Context, t Target, packedArgs []byte) {
	out, err := t.Handle(ctx, packedArgs)
	switch {
	case err != nil:
		e.onDrop(ctx, t, err)
	case out.Failed():
		dropErr := out.Err
		if dropErr == nil {
			dropErr = errRaised
		}
		e.onDrop(ctx, t, dropErr)
	}
}

var errRaised = errors.New("task raised an error")

// safeGo runs f in a new goroutine with panic recovery so that a failure
// in fire-and-forget background work never crashes the process.
func safeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Op().Error("recovered panic in async task", "panic", r)
			}
		}()
		f()
	}()
}
