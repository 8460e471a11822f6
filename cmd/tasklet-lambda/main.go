// Command tasklet-lambda is the execution-side entry point deployed to AWS
// Lambda. Each deployed function runs this binary; AWS_LAMBDA_FUNCTION_NAME
// selects the task it serves.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/oriys/tasklet/examples"
	"github.com/oriys/tasklet/internal/backend"
	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/failures"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/router"
	"github.com/oriys/tasklet/internal/task"
)

func main() {
	handler, err := build(context.Background(), os.Getenv("AWS_LAMBDA_FUNCTION_NAME"))
	if err != nil {
		logging.Op().Error("lambda startup failed", "error", err)
		os.Exit(1)
	}
	lambda.Start(handler)
}

func build(ctx context.Context, address string) (router.LambdaHandlerFunc, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: AWS_LAMBDA_FUNCTION_NAME is not set", domain.ErrConfiguration)
	}
	cfg, app, err := loadApp(ctx)
	if err != nil {
		return nil, err
	}
	h, err := serveApp(ctx, cfg, app, address)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	return h, nil
}

func serveApp(ctx context.Context, cfg *config.Config, app *task.App, address string) (router.LambdaHandlerFunc, error) {
	// CloudWatch already captures stdout, so the request log stays on.
	opts := []router.Option{router.WithExceptionHandler(router.LogExceptionHandler)}
	if cfg.Postgres.DSN != "" {
		sink, err := failures.NewPostgresSink(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		opts = append(opts, router.WithExceptionHandler(sink.Handler()))
	}

	r, err := router.FromApp(app, opts...)
	if err != nil {
		return nil, err
	}
	return r.LambdaHandler(address)
}

// loadApp builds the execution-side App. Tasks dispatching other tasks go
// through the configured backend; only the local backend refuses to run here.
func loadApp(ctx context.Context) (*config.Config, *task.App, error) {
	cfg, err := config.Load(os.Getenv("TASKLET_CONFIG"))
	if err != nil {
		return nil, nil, err
	}
	logging.InitStructured("json", cfg.Observability.LogLevel)

	cfg.Side = domain.SideExecution
	app, err := backend.NewApp(ctx, cfg, examples.NewApp)
	if err != nil {
		return nil, nil, err
	}
	return cfg, app, nil
}
