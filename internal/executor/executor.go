// Package executor runs packed task calls, either in this process (Local) or
// on a remote execution side reached through a Transport (Remote).
//
// Executors only move bytes. Packing arguments and unpacking results is the
// task's job, so both variants hand back the same *wire.Outcome.
package executor

import (
	"context"
	"time"

	"github.com/oriys/tasklet/internal/wire"
)

// Kind identifies an executor variant.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Target is the task an executor runs. Handle unpacks the arguments, calls the
// function once and packs the result or the raised error.
type Target interface {
	Name() string
	Address() string
	Handle(ctx context.Context, packedArgs []byte) (*wire.Outcome, error)
}

// Executor is implemented by *LocalExecutor and *RemoteExecutor only.
type Executor interface {
	Kind() Kind
	// Invoke runs the call and waits for its outcome.
	Invoke(ctx context.Context, t Target, packedArgs []byte) (*wire.Outcome, error)
	// InvokeAsync starts the call and returns without a result.
	InvokeAsync(ctx context.Context, t Target, packedArgs []byte) error
	// Queue appends the call to the executor's FIFO.
	Queue(ctx context.Context, t Target, packedArgs []byte) error
	// Delay runs the call once d has elapsed.
	Delay(ctx context.Context, t Target, packedArgs []byte, d time.Duration) error

	sealed()
}
