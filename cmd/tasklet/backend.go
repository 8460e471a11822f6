package main

import (
	"context"

	"github.com/oriys/tasklet/examples"
	"github.com/oriys/tasklet/internal/backend"
	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/task"
)

// newApp builds the demo App bound to the configured executor and serializer.
func newApp(ctx context.Context, cfg *config.Config) (*task.App, error) {
	return backend.NewApp(ctx, cfg, examples.NewApp)
}
