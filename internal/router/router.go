// Package router is the execution side of the remote boundary. It holds a
// table of tasks built at process start and serves request envelopes to them
// over HTTP, gRPC, AWS Lambda or Redis.
//
// The address of the function comes from the route, never from the request
// body, and a request is unpacked once and executed once.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/metrics"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/task"
	"github.com/oriys/tasklet/internal/wire"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnknownFunction is returned for an address with no registered task.
var ErrUnknownFunction = errors.New("unknown function")

// ExceptionHandler observes every error raised by a task before it is sent
// back to the caller.
type ExceptionHandler func(ctx context.Context, address string, err error)

// LogExceptionHandler logs raised errors at warn level.
func LogExceptionHandler(ctx context.Context, address string, err error) {
	logging.OpContext(ctx).Warn("task raised", "address", address, "error", err)
}

// Router maps addresses to tasks.
type Router struct {
	tasks    map[string]*task.Task
	handlers []ExceptionHandler
	reqLog   *logging.Logger

	inflight sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithExceptionHandler adds h to the handlers run for every raised error.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(r *Router) {
		if h != nil {
			r.handlers = append(r.handlers, h)
		}
	}
}

// WithRequestLogger sets the per-request log. A nil logger disables it.
func WithRequestLogger(l *logging.Logger) Option {
	return func(r *Router) {
		r.reqLog = l
	}
}

// New builds the routing table. Two tasks with the same address are rejected.
func New(tasks []*task.Task, opts ...Option) (*Router, error) {
	r := &Router{
		tasks:  make(map[string]*task.Task, len(tasks)),
		reqLog: logging.Default(),
	}
	for _, t := range tasks {
		if prev, ok := r.tasks[t.Address()]; ok {
			return nil, fmt.Errorf("%w: %s and %s share address %s", domain.ErrConfiguration, prev.Name(), t.Name(), t.Address())
		}
		r.tasks[t.Address()] = t
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// FromApp routes every task registered on app.
func FromApp(app *task.App, opts ...Option) (*Router, error) {
	return New(app.Tasks(), opts...)
}

// Addresses returns the routed addresses in sorted order.
func (r *Router) Addresses() []string {
	out := make([]string, 0, len(r.tasks))
	for a := range r.tasks {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the task routed at address.
func (r *Router) Lookup(address string) (*task.Task, bool) {
	t, ok := r.tasks[address]
	return t, ok
}

// Wait blocks until every async request has finished.
func (r *Router) Wait() {
	r.inflight.Wait()
}

// call is one request as seen by every surface.
type call struct {
	surface   string
	address   string
	requestID string
	mode      domain.ExecutionMode
}

// prepare resolves the task and decodes the envelope. Failures here are the
// caller's fault: ErrUnknownFunction or a malformed envelope.
func (r *Router) prepare(c *call, req *wire.Request) (*task.Task, []byte, error) {
	t, ok := r.tasks[c.address]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFunction, c.address)
	}
	if req == nil {
		return nil, nil, fmt.Errorf("%w: missing request", domain.ErrInternal)
	}
	packed, err := req.Args()
	if err != nil {
		return nil, nil, err
	}
	if c.requestID == "" {
		c.requestID = uuid.New().String()[:8]
	}
	return t, packed, nil
}

// serveInvoke serves a synchronous request. A returned error means no response
// envelope could be produced; errors raised by the task are inside the
// response.
func (r *Router) serveInvoke(ctx context.Context, c call, req *wire.Request) (*wire.Response, error) {
	c.mode = domain.ModeInvoke
	t, packed, err := r.prepare(&c, req)
	if err != nil {
		return nil, err
	}
	out, err := r.execute(ctx, c, t, packed)
	if err != nil {
		return nil, err
	}
	return wire.NewResponse(out), nil
}

// serveAsync validates the request, then runs it in the background.
func (r *Router) serveAsync(ctx context.Context, c call, req *wire.Request) error {
	c.mode = domain.ModeInvokeAsync
	t, packed, err := r.prepare(&c, req)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				logging.Op().Error("recovered panic in async request", "address", c.address, "panic", rec)
			}
		}()
		r.execute(ctx, c, t, packed)
	}()
	return nil
}

func (r *Router) execute(ctx context.Context, c call, t *task.Task, packed []byte) (*wire.Outcome, error) {
	ctx, span := observability.StartServerSpan(ctx, "tasklet.execute",
		observability.AttrAddress.String(c.address),
		observability.AttrTaskName.String(t.Name()),
		observability.AttrMode.String(string(c.mode)),
		observability.AttrSurface.String(c.surface),
		observability.AttrRequestID.String(c.requestID),
	)
	defer span.End()

	metrics.IncActiveRequests()
	defer metrics.DecActiveRequests()
	start := time.Now()

	out, err := t.Handle(ctx, packed)

	rec := &domain.InvocationRecord{
		RequestID:  c.requestID,
		TraceID:    observability.GetTraceID(ctx),
		Address:    c.address,
		Mode:       c.mode,
		DurationMs: time.Since(start).Milliseconds(),
	}
	status := metrics.StatusOK
	switch {
	case err != nil:
		status = metrics.StatusError
		rec.Error = err.Error()
		observability.SetSpanError(span, err)
	case out.Failed():
		status = metrics.StatusException
		rec.Raised = true
		if out.Err != nil {
			rec.Error = out.Err.Error()
			for _, h := range r.handlers {
				h(ctx, c.address, out.Err)
			}
		}
		span.SetAttributes(attribute.Bool(string(observability.AttrRaised), true))
		observability.SetSpanOK(span)
	default:
		observability.SetSpanOK(span)
	}

	metrics.RecordExecution(c.address, c.surface, status, float64(time.Since(start).Microseconds())/1000)
	r.reqLog.Log(rec)
	return out, err
}
