package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/oriys/tasklet/internal/wire"
)

// fakeTarget records its calls and returns canned outcomes.
type fakeTarget struct {
	name    string
	address string
	handle  func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error)

	mu    sync.Mutex
	calls [][]byte
}

func newFakeTarget(handle func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error)) *fakeTarget {
	if handle == nil {
		handle = func(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
			return &wire.Outcome{Result: packedArgs}, nil
		}
	}
	return &fakeTarget{name: "example.com/demo:Echo", address: "demo-echo", handle: handle}
}

func (f *fakeTarget) Name() string    { return f.name }
func (f *fakeTarget) Address() string { return f.address }

func (f *fakeTarget) Handle(ctx context.Context, packedArgs []byte) (*wire.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, packedArgs)
	f.mu.Unlock()
	return f.handle(ctx, packedArgs)
}

func (f *fakeTarget) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errBoom = errors.New("boom")
