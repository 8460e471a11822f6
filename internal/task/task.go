// Package task turns plain Go functions into dispatchable tasks.
//
// A Task binds a function to an executor and a serializer. Each dispatch packs
// the arguments, hands the bytes to the executor, and unpacks the result or
// re-raises the error that came back. Whether the function ran in this process
// or on a remote execution side is invisible to the caller, except that with a
// structural serializer a raised error comes back as a *bridge.RemoteError.
package task

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/oriys/tasklet/internal/bridge"
	"github.com/oriys/tasklet/internal/deploy"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/executor"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/metrics"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/serializer"
	"github.com/oriys/tasklet/internal/wire"
	"go.opentelemetry.io/otel/trace"
)

// Func is the shape of a task function. A returned error is raised to the
// caller; a panic is raised as *PanicError.
type Func func(ctx context.Context, args Args) (any, error)

// DefaultInstance prefixes addressable names when no instance is configured.
const DefaultInstance = "tasklet"

// Task is a registered function. It is immutable and safe for concurrent use.
type Task struct {
	fn      Func
	name    string
	address string
	exec    executor.Executor
	ser     serializer.Serializer
	side    domain.Side
	opts    Options
}

// Register binds fn to an executor and a serializer.
func Register(fn Func, exec executor.Executor, ser serializer.Serializer, opts ...Option) (*Task, error) {
	o := Options{Instance: DefaultInstance, Executor: exec, Serializer: ser}
	for _, opt := range opts {
		opt(&o)
	}
	return newTask(fn, o)
}

func newTask(fn Func, o Options) (*Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil task function", domain.ErrConfiguration)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	name := o.Name
	if name == "" {
		name = QualifiedName(fn)
	}
	if o.Instance == "" {
		o.Instance = DefaultInstance
	}
	address := deploy.FunctionName(o.Instance, name)
	if err := domain.ValidateAddress(address); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	return &Task{
		fn:      fn,
		name:    name,
		address: address,
		exec:    o.Executor,
		ser:     o.Serializer,
		side:    o.Side,
		opts:    o,
	}, nil
}

// QualifiedName returns "import/path:Func" for a named function. Closures get
// their runtime name ("import/path:Outer.func1").
func QualifiedName(fn any) string {
	full := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	slash := strings.LastIndex(full, "/")
	dot := strings.Index(full[slash+1:], ".")
	if dot < 0 {
		return full
	}
	dot += slash + 1
	return full[:dot] + ":" + full[dot+1:]
}

// Name returns the qualified name.
func (t *Task) Name() string { return t.name }

// Address returns the addressable name the execution side routes on.
func (t *Task) Address() string { return t.address }

func (t *Task) Executor() executor.Executor       { return t.exec }
func (t *Task) Serializer() serializer.Serializer { return t.ser }
func (t *Task) Options() Options                  { return t.opts }

// Invoke runs the task and waits for its result.
func (t *Task) Invoke(ctx context.Context, args ...any) (any, error) {
	packed, err := t.pack(args)
	if err != nil {
		return nil, err
	}

	ctx, span := t.startSpan(ctx, domain.ModeInvoke)
	defer span.End()
	start := time.Now()

	out, err := t.exec.Invoke(ctx, t, packed)
	if err != nil {
		t.record(ctx, domain.ModeInvoke, metrics.StatusError, start, err)
		observability.SetSpanError(span, err)
		return nil, err
	}
	if out.Failed() {
		raised := bridge.Raise(t.ser, out.Exception)
		t.record(ctx, domain.ModeInvoke, metrics.StatusException, start, raised)
		observability.SetSpanError(span, raised)
		return nil, raised
	}

	v, err := t.ser.UnpackResult(out.Result)
	if err != nil {
		t.record(ctx, domain.ModeInvoke, metrics.StatusError, start, err)
		observability.SetSpanError(span, err)
		return nil, err
	}
	t.record(ctx, domain.ModeInvoke, metrics.StatusOK, start, nil)
	observability.SetSpanOK(span)
	return v, nil
}

// InvokeAsync starts the task without waiting. Its result and any error it
// raises are discarded.
func (t *Task) InvokeAsync(ctx context.Context, args ...any) error {
	return t.dispatch(ctx, domain.ModeInvokeAsync, args, func(ctx context.Context, packed []byte) error {
		return t.exec.InvokeAsync(ctx, t, packed)
	})
}

// Queue appends the task to its executor's FIFO.
func (t *Task) Queue(ctx context.Context, args ...any) error {
	return t.dispatch(ctx, domain.ModeQueue, args, func(ctx context.Context, packed []byte) error {
		return t.exec.Queue(ctx, t, packed)
	})
}

// Delay runs the task once d has elapsed.
func (t *Task) Delay(ctx context.Context, d time.Duration, args ...any) error {
	return t.dispatch(ctx, domain.ModeDelay, args, func(ctx context.Context, packed []byte) error {
		return t.exec.Delay(ctx, t, packed, d)
	})
}

func (t *Task) dispatch(ctx context.Context, mode domain.ExecutionMode, args []any, send func(context.Context, []byte) error) error {
	packed, err := t.pack(args)
	if err != nil {
		return err
	}

	ctx, span := t.startSpan(ctx, mode)
	defer span.End()
	start := time.Now()

	if err := send(ctx, packed); err != nil {
		t.record(ctx, mode, metrics.StatusError, start, err)
		observability.SetSpanError(span, err)
		return err
	}
	t.record(ctx, mode, metrics.StatusOK, start, nil)
	observability.SetSpanOK(span)
	return nil
}

// Call runs the function directly in this goroutine, bypassing executor and
// serializer. On the dispatch side this is almost always a mistake, so it
// logs a warning.
func (t *Task) Call(ctx context.Context, args ...any) (any, error) {
	if t.side == domain.SideDispatch {
		logging.OpContext(ctx).Warn("task called directly; use Invoke, InvokeAsync, Queue or Delay to dispatch it",
			"task", t.name)
	}
	return t.call(ctx, splitArgs(args))
}

// Handle is the execution half of a dispatch: unpack the arguments once, call
// the function once, pack its result or the error it raised.
//
// A returned error means the call could not be made or its result could not
// be packed. Errors raised by the function are in the outcome.
func (t *Task) Handle(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
	positional, keyword, err := t.ser.UnpackArgs(packedArgs)
	if err != nil {
		return nil, err
	}

	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	v, callErr := t.call(ctx, Args{Positional: positional, Keyword: keyword})
	if callErr != nil {
		exc, err := bridge.Capture(t.ser, callErr)
		if err != nil {
			return nil, fmt.Errorf("%s: capture raised error: %w", t.name, err)
		}
		return &wire.Outcome{Exception: exc, Err: callErr}, nil
	}

	res, err := t.ser.PackResult(v)
	if err != nil {
		metrics.RecordSerializationFailure(t.ser.Name())
		return nil, fmt.Errorf("%s: pack result: %w", t.name, err)
	}
	return &wire.Outcome{Result: res}, nil
}

func (t *Task) call(ctx context.Context, args Args) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, newPanicError(r)
		}
	}()
	return t.fn(ctx, args)
}

func (t *Task) pack(args []any) ([]byte, error) {
	a := splitArgs(args)
	packed, err := t.ser.PackArgs(a.Positional, a.Keyword)
	if err != nil {
		metrics.RecordSerializationFailure(t.ser.Name())
		return nil, fmt.Errorf("%s: pack arguments: %w", t.name, err)
	}
	return packed, nil
}

func (t *Task) backend() string {
	if r, ok := t.exec.(*executor.RemoteExecutor); ok {
		return r.TransportName()
	}
	return t.exec.Kind().String()
}

func (t *Task) startSpan(ctx context.Context, mode domain.ExecutionMode) (context.Context, trace.Span) {
	return observability.StartClientSpan(ctx, "tasklet."+string(mode),
		observability.AttrTaskName.String(t.name),
		observability.AttrAddress.String(t.address),
		observability.AttrMode.String(string(mode)),
		observability.AttrBackend.String(t.backend()),
		observability.AttrSerializer.String(t.ser.Name()),
	)
}

func (t *Task) record(ctx context.Context, mode domain.ExecutionMode, status string, start time.Time, err error) {
	metrics.RecordDispatch(t.name, string(mode), t.backend(), status, float64(time.Since(start).Microseconds())/1000)
	if err != nil && status == metrics.StatusError {
		logging.OpContext(ctx).Debug("dispatch failed",
			"task", t.name, "mode", mode, "backend", t.backend(), "error", err)
	}
}

// IsRemoteError reports whether err is an error raised by task code that came
// back through a structural serializer.
func IsRemoteError(err error) bool {
	return errors.Is(err, bridge.ErrRemote)
}
