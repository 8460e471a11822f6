package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
	"go.uber.org/goleak"
)

func TestLocalInvokeIsSynchronous(t *testing.T) {
	e := NewLocal(domain.SideDispatch)
	var ran atomic.Bool
	target := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		ran.Store(true)
		return &wire.Outcome{Result: []byte("5")}, nil
	})

	out, err := e.Invoke(context.Background(), target, []byte("args"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !ran.Load() {
		t.Fatal("Invoke returned before the call ran")
	}
	if string(out.Result) != "5" {
		t.Fatalf("Result = %q", out.Result)
	}
}

func TestLocalQueueFIFO(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := NewLocal(domain.SideDispatch)
	var (
		mu     sync.Mutex
		tokens []string
	)
	target := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		// Early calls are slowest so that any concurrency would reorder them.
		if string(packedArgs) == "a" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		tokens = append(tokens, string(packedArgs))
		mu.Unlock()
		return &wire.Outcome{Result: []byte("null")}, nil
	})

	for _, tok := range []string{"a", "b", "c"} {
		if err := e.Queue(context.Background(), target, []byte(tok)); err != nil {
			t.Fatalf("Queue(%s): %v", tok, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(tokens) != 3 || tokens[0] != "a" || tokens[1] != "b" || tokens[2] != "c" {
		t.Fatalf("tokens = %v, want [a b c]", tokens)
	}
	if e.Pending() != 0 {
		t.Fatalf("Pending = %d after Close", e.Pending())
	}
}

func TestLocalQueueAfterClose(t *testing.T) {
	e := NewLocal(domain.SideDispatch)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	err := e.Queue(context.Background(), newFakeTarget(nil), nil)
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("Queue after Close = %v, want ErrInternal", err)
	}
	// Close is idempotent.
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLocalInvokeAsync(t *testing.T) {
	e := NewLocal(domain.SideDispatch)
	done := make(chan struct{})
	target := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		close(done)
		return &wire.Outcome{Result: []byte("null")}, nil
	})

	if err := e.InvokeAsync(context.Background(), target, nil); err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async call never ran")
	}
}

func TestLocalDelaySurvivesCallerCancel(t *testing.T) {
	e := NewLocal(domain.SideDispatch)
	done := make(chan error, 1)
	target := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		done <- ctx.Err()
		return &wire.Outcome{Result: []byte("null")}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Delay(ctx, target, nil, 10*time.Millisecond); err != nil {
		t.Fatalf("Delay: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("call saw cancelled context: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed call never ran")
	}
}

func TestLocalDelay(t *testing.T) {
	e := NewLocal(domain.SideDispatch)
	var ran atomic.Bool
	target := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		ran.Store(true)
		return &wire.Outcome{Result: []byte("null")}, nil
	})

	const d = 100 * time.Millisecond
	if err := e.Delay(context.Background(), target, nil, d); err != nil {
		t.Fatalf("Delay: %v", err)
	}
	time.Sleep(d / 4)
	if ran.Load() {
		t.Fatal("delayed call ran before its delay")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !ran.Load() {
		if time.Now().After(deadline) {
			t.Fatal("delayed call never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLocalDropHandler(t *testing.T) {
	dropped := make(chan error, 2)
	e := NewLocal(domain.SideDispatch, WithDropHandler(func(ctx context.Context, target Target, err error) {
		dropped <- err
	}))

	raising := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		return &wire.Outcome{Exception: []byte("x"), Err: errBoom}, nil
	})
	failing := newFakeTarget(func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
		return nil, domain.ErrSerialization
	})

	if err := e.InvokeAsync(context.Background(), raising, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.Queue(context.Background(), failing, nil); err != nil {
		t.Fatal(err)
	}
	e.Close()

	got := map[error]bool{}
	for range 2 {
		select {
		case err := <-dropped:
			got[err] = true
		case <-time.After(2 * time.Second):
			t.Fatal("drop handler not called")
		}
	}
	if !got[errBoom] || !got[domain.ErrSerialization] {
		t.Fatalf("dropped = %v", got)
	}
}

func TestLocalExecutionSideGuard(t *testing.T) {
	e := NewLocal(domain.SideExecution)
	target := newFakeTarget(nil)
	ctx := context.Background()

	if _, err := e.Invoke(ctx, target, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Invoke = %v", err)
	}
	if err := e.InvokeAsync(ctx, target, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("InvokeAsync = %v", err)
	}
	if err := e.Queue(ctx, target, nil); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Queue = %v", err)
	}
	if err := e.Delay(ctx, target, nil, time.Millisecond); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("Delay = %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if target.callCount() != 0 {
		t.Fatalf("guarded executor ran %d calls", target.callCount())
	}
}

func TestLocalKind(t *testing.T) {
	var e Executor = NewLocal(domain.SideDispatch)
	if e.Kind() != KindLocal || e.Kind().String() != "local" {
		t.Fatalf("Kind = %v", e.Kind())
	}
}
