package router

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oriys/tasklet/internal/bridge"
	"github.com/oriys/tasklet/internal/executor"
	"github.com/oriys/tasklet/internal/serializer"
	"github.com/oriys/tasklet/internal/task"
	"github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TASKLET_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisWorkerEndToEnd(t *testing.T) {
	client := newTestRedisClient(t)
	prefix := "tasklet-test:" + time.Now().Format("150405.000000") + ":"

	r := newExecRouter(t, serializer.JSON())
	w := r.RedisWorker(client, WithWorkerPrefix(prefix), WithPollTimeout(200*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	tr := executor.NewRedisTransport(client, executor.WithRedisPrefix(prefix), executor.WithReplyTimeout(5*time.Second))
	app := newDispatchApp(serializer.JSON(), tr)

	v, err := taskAt(t, app, add).Invoke(context.Background(), 2, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if n, _ := task.As[int](v); n != 5 {
		t.Fatalf("add = %v", v)
	}

	_, err = taskAt(t, app, boom).Invoke(context.Background())
	if !errors.Is(err, bridge.ErrRemote) {
		t.Fatalf("boom = %v", err)
	}

	if err := taskAt(t, app, record).InvokeAsync(context.Background(), "redis-token"); err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
}
