package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oriys/tasklet/internal/logging"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCServer returns a server with the dispatch service and the standard
// health service registered.
func (r *Router) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(recoveryInterceptor, loggingInterceptor),
	}, opts...)
	s := grpc.NewServer(opts...)
	r.RegisterGRPC(s)

	hs := health.NewServer()
	hs.SetServingStatus(wire.DispatchService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}

// RegisterGRPC registers the dispatch service on s.
func (r *Router) RegisterGRPC(s grpc.ServiceRegistrar) {
	wire.RegisterDispatchServer(s, &grpcDispatch{r: r})
}

type grpcDispatch struct {
	r *Router
}

func (d *grpcDispatch) prepare(ctx context.Context, in *wrapperspb.BytesValue) (context.Context, call, *wire.Request, error) {
	ctx = observability.IncomingGRPC(ctx)
	c := call{surface: "grpc"}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(wire.FunctionMetadataKey); len(v) > 0 {
			c.address = v[0]
		}
		if v := md.Get(wire.HeaderRequestID); len(v) > 0 {
			c.requestID = v[0]
		}
	}
	if c.address == "" {
		return ctx, c, nil, status.Errorf(codes.InvalidArgument, "missing %s metadata", wire.FunctionMetadataKey)
	}
	req, err := wire.DecodeRequest(in.GetValue())
	if err != nil {
		return ctx, c, nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return ctx, c, req, nil
}

func (d *grpcDispatch) Invoke(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	ctx, c, req, err := d.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	resp, err := d.r.serveInvoke(ctx, c, req)
	if err != nil {
		return nil, grpcError(err)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(body), nil
}

func (d *grpcDispatch) InvokeAsync(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	ctx, c, req, err := d.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := d.r.serveAsync(ctx, c, req); err != nil {
		return nil, grpcError(err)
	}
	return &wrapperspb.BytesValue{}, nil
}

// grpcError uses the codes the gRPC transport maps back: NotFound for an
// unknown function, InvalidArgument for a bad envelope, Aborted for a function
// that could not run.
func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownFunction):
		return status.Error(codes.NotFound, err.Error())
	case wire.ErrMalformed(err):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Aborted, err.Error())
	}
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logging.OpContext(ctx).Debug("gRPC request failed",
			"method", info.FullMethod,
			"duration", time.Since(start),
			"error", err,
		)
	}
	return resp, err
}

func recoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("recovered panic in gRPC handler", "method", info.FullMethod, "panic", r)
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}
