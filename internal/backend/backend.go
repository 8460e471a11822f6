// Package backend turns configuration into the executor and App a binary runs
// with. Both the CLI and the Lambda entry point build through it, so a task
// dispatching another task behaves the same on either side of the boundary.
package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/oriys/tasklet/internal/circuitbreaker"
	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/executor"
	"github.com/oriys/tasklet/internal/serializer"
	"github.com/oriys/tasklet/internal/task"
	"github.com/redis/go-redis/v9"
)

// NewExecutor builds the executor cfg.Backend selects. Only the local backend
// yields a local executor; on the execution side it refuses to dispatch, while
// a remote backend keeps working so deployed tasks can invoke other tasks.
func NewExecutor(ctx context.Context, cfg *config.Config) (executor.Executor, error) {
	var (
		tr  executor.Transport
		err error
	)
	switch cfg.Backend {
	case config.BackendLocal:
		return executor.NewLocal(cfg.Side), nil
	case config.BackendHTTP:
		tr = executor.NewHTTPTransport(cfg.HTTP.BaseURL, executor.WithHTTPTimeout(cfg.HTTPTimeout()))
	case config.BackendGRPC:
		tr, err = executor.DialGRPC(cfg.GRPC.Target)
	case config.BackendLambda:
		tr, err = executor.NewLambdaTransportFromSettings(ctx, executor.LambdaSettings{
			Region:          cfg.Lambda.Region,
			Profile:         cfg.Lambda.Profile,
			Endpoint:        cfg.Lambda.Endpoint,
			AccessKeyID:     cfg.Lambda.AccessKeyID,
			SecretAccessKey: cfg.Lambda.SecretAccessKey,
		})
	case config.BackendRedis:
		tr = executor.NewRedisTransport(NewRedisClient(cfg),
			executor.WithRedisPrefix(cfg.Redis.Prefix),
			executor.WithReplyTimeout(cfg.RedisReplyTimeout()))
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", domain.ErrConfiguration, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", cfg.Backend, err)
	}
	return executor.NewRemote(tr,
		executor.WithCloseTransport(true),
		executor.WithCircuitBreaker(circuitbreaker.Config{
			FailurePct:     cfg.Breaker.FailurePct,
			MinRequests:    cfg.Breaker.MinRequests,
			Window:         cfg.BreakerWindow(),
			OpenFor:        cfg.BreakerOpen(),
			HalfOpenProbes: cfg.Breaker.HalfOpenProbes,
		}),
	), nil
}

// NewRedisClient returns a client for cfg.Redis.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Builder registers a set of tasks on a new App.
type Builder func(opts ...task.AppOption) (*task.App, error)

// NewApp builds an App with build, bound to the configured instance, side,
// executor and serializer.
func NewApp(ctx context.Context, cfg *config.Config, build Builder) (*task.App, error) {
	ser, err := serializer.ByName(cfg.Serializer)
	if err != nil {
		return nil, err
	}
	exec, err := NewExecutor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app, err := build(
		task.WithAppInstance(cfg.Instance),
		task.WithSide(cfg.Side),
		task.WithExecutor(exec),
		task.WithSerializer(ser),
	)
	if err != nil {
		if c, ok := exec.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return app, nil
}
