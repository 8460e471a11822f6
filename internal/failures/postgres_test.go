package failures

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

type quotaError struct {
	Limit int
}

func (e *quotaError) Error() string { return "quota exceeded" }
func (e *quotaError) Args() []any   { return []any{e.Limit} }

func TestNewFailure(t *testing.T) {
	f := NewFailure("svc-add-1234abcd", &quotaError{Limit: 3})

	if _, err := uuid.Parse(f.ID); err != nil {
		t.Fatalf("id %q: %v", f.ID, err)
	}
	if f.Exception != "quotaError" {
		t.Fatalf("exception = %q", f.Exception)
	}
	if f.ExceptionFQN != "github.com/oriys/tasklet/internal/failures.quotaError" {
		t.Fatalf("fqn = %q", f.ExceptionFQN)
	}
	if f.Message != "quota exceeded" || len(f.Args) != 1 || f.Args[0] != 3 {
		t.Fatalf("failure = %+v", f)
	}
	if f.At.IsZero() {
		t.Fatal("timestamp not set")
	}
}

func TestNewPostgresSinkRequiresDSN(t *testing.T) {
	if _, err := NewPostgresSink(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func newTestSink(t *testing.T) *PostgresSink {
	t.Helper()

	dsn := os.Getenv("TASKLET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TASKLET_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := NewPostgresSink(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresSinkHandlerJournals(t *testing.T) {
	s := newTestSink(t)
	address := "test-" + uuid.New().String()[:8]

	h := s.Handler()
	h(context.Background(), address, &quotaError{Limit: 7})
	h(context.Background(), address, errors.New("plain"))
	h(context.Background(), address, nil)

	got, err := s.List(context.Background(), address, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("journaled %d failures, want 2", len(got))
	}
	for _, f := range got {
		if f.Address != address {
			t.Fatalf("address = %q", f.Address)
		}
	}
}
