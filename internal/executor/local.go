package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/metrics"
	"github.com/oriys/tasklet/internal/wire"
)

type queuedCall struct {
	ctx  context.Context
	t    Target
	args []byte
}

// LocalExecutor runs calls in this process. Invoke runs on the caller's
// goroutine, InvokeAsync and Delay start a goroutine per call, and Queue feeds
// a single worker goroutine that runs calls one at a time in submission order.
//
// A LocalExecutor built for the execution side refuses every call: code
// deployed behind a remote executor must never fall back to running locally.
type LocalExecutor struct {
	side   domain.Side
	onDrop func(ctx context.Context, t Target, err error)

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []queuedCall
	started bool
	closed  bool
	done    chan struct{}
	pending atomic.Int64
}

// NewLocal returns a LocalExecutor for a process on the given side.
func NewLocal(side domain.Side, opts ...LocalOption) *LocalExecutor {
	e := &LocalExecutor{
		side:   side,
		onDrop: logDropped,
		done:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LocalExecutor) Kind() Kind { return KindLocal }
func (e *LocalExecutor) sealed()    {}

func (e *LocalExecutor) guard() error {
	if e.side == domain.SideExecution {
		return fmt.Errorf("%w: local backend used in an execution-side deployment", domain.ErrConfiguration)
	}
	return nil
}

// Invoke runs the call synchronously on the calling goroutine.
func (e *LocalExecutor) Invoke(ctx context.Context, t Target, packedArgs []byte) (*wire.Outcome, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	return t.Handle(ctx, packedArgs)
}

// InvokeAsync runs the call on a new goroutine. Its outcome is discarded.
func (e *LocalExecutor) InvokeAsync(ctx context.Context, t Target, packedArgs []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	safeGo(func() { e.runDetached(ctx, t, packedArgs) })
	return nil
}

// Queue appends the call to the FIFO. The worker starts on first use.
func (e *LocalExecutor) Queue(ctx context.Context, t Target, packedArgs []byte) error {
	if err := e.guard(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("%w: executor closed", domain.ErrInternal)
	}
	if !e.started {
		e.started = true
		go e.worker()
	}
	e.queue = append(e.queue, queuedCall{ctx: context.WithoutCancel(ctx), t: t, args: packedArgs})
	e.pending.Add(1)
	metrics.AddQueueDepth(1)
	e.cond.Signal()
	return nil
}

// Delay runs the call synchronously on a new goroutine once d has elapsed.
// The call cannot be cancelled.
func (e *LocalExecutor) Delay(ctx context.Context, t Target, packedArgs []byte, d time.Duration) error {
	if err := e.guard(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	safeGo(func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		<-timer.C
		e.runDetached(ctx, t, packedArgs)
	})
	return nil
}

// Pending returns the number of queued calls not yet finished.
func (e *LocalExecutor) Pending() int {
	return int(e.pending.Load())
}

// Close stops accepting queued calls and waits until the worker has run every
// call already queued. Async and delayed calls are not waited for.
func (e *LocalExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		started := e.started
		e.mu.Unlock()
		if started {
			<-e.done
		}
		return nil
	}
	e.closed = true
	started := e.started
	e.cond.Broadcast()
	e.mu.Unlock()

	if started {
		<-e.done
	}
	return nil
}

func (e *LocalExecutor) worker() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		call := e.queue[0]
		e.queue[0] = queuedCall{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.runQueued(call)
	}
}

func (e *LocalExecutor) runQueued(call queuedCall) {
	defer func() {
		e.pending.Add(-1)
		metrics.AddQueueDepth(-1)
	}()
	defer func() {
		if r := recover(); r != nil {
			e.onDrop(call.ctx, call.t, fmt.Errorf("%w: panic in queued call: %v", domain.ErrInternal, r))
		}
	}()
	e.runDetached(call.ctx, call.t, call.args)
}
