package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/tasklet/internal/backend"
	"github.com/oriys/tasklet/internal/config"
	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/failures"
	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/metrics"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/router"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		httpAddr    string
		grpcAddr    string
		redisWorker bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo tasks as an execution side",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http") {
				cfg.Server.HTTPAddr = httpAddr
			}
			if cmd.Flags().Changed("grpc") {
				cfg.Server.GRPCAddr = grpcAddr
			}
			if cmd.Flags().Changed("redis-worker") {
				cfg.Server.RedisWorker = redisWorker
			}
			// A serving process is the execution side whatever the
			// environment says.
			cfg.Side = domain.SideExecution

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (host:port, unix:///path, vsock://port)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC listen address (host:port, unix:///path, vsock://port)")
	cmd.Flags().BoolVar(&redisWorker, "redis-worker", false, "Serve requests from Redis lists")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	obs := cfg.Observability
	metrics.InitPrometheus(obs.MetricsNamespace, nil)
	if err := observability.Init(ctx, observability.Config{
		Enabled:    obs.TracingEnabled,
		Exporter:   obs.TracingExporter,
		Endpoint:   obs.TracingEndpoint,
		Instance:   cfg.Instance,
		Side:       cfg.Side,
		SampleRate: obs.TracingSample,
	}); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = observability.Shutdown(sctx)
	}()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	reqLog := logging.Default()
	if cfg.Server.RequestLogFile != "" {
		if err := reqLog.SetOutput(cfg.Server.RequestLogFile); err != nil {
			return err
		}
		defer reqLog.Close()
	}

	opts := []router.Option{
		router.WithRequestLogger(reqLog),
		router.WithExceptionHandler(router.LogExceptionHandler),
	}
	if cfg.Postgres.DSN != "" {
		sink, err := failures.NewPostgresSink(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer sink.Close()
		opts = append(opts, router.WithExceptionHandler(sink.Handler()))
	}

	r, err := router.FromApp(app, opts...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	served := 0

	if cfg.Server.HTTPAddr != "" {
		lis, err := router.Listen(cfg.Server.HTTPAddr)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: r.HTTPHandler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logging.Op().Info("http surface listening", "addr", lis.Addr().String())
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		served++
	}

	if cfg.Server.GRPCAddr != "" {
		lis, err := router.Listen(cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		gs := r.GRPCServer()
		g.Go(func() error {
			logging.Op().Info("grpc surface listening", "addr", lis.Addr().String())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
		served++
	}

	if cfg.Server.RedisWorker {
		client := backend.NewRedisClient(cfg)
		defer client.Close()
		w := r.RedisWorker(client, router.WithWorkerPrefix(cfg.Redis.Prefix))
		g.Go(func() error { return w.Run(ctx) })
		served++
	}

	if served == 0 {
		return fmt.Errorf("%w: nothing to serve; set an HTTP or gRPC address or enable the redis worker", domain.ErrConfiguration)
	}
	logging.Op().Info("serving tasks", "instance", cfg.Instance, "functions", len(r.Addresses()))

	err = g.Wait()
	r.Wait()
	return err
}
