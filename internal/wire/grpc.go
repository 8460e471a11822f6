package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The gRPC dispatch service carries the JSON envelope inside a BytesValue so
// both ends share the exact bytes the HTTP and Lambda transports send. The
// target address travels in request metadata.
const (
	DispatchService     = "tasklet.v1.Dispatch"
	MethodInvoke        = "/" + DispatchService + "/Invoke"
	MethodInvokeAsync   = "/" + DispatchService + "/InvokeAsync"
	FunctionMetadataKey = "x-tasklet-function"
)

// DispatchServer is implemented by the execution side.
type DispatchServer interface {
	Invoke(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	InvokeAsync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// RegisterDispatchServer registers srv on s.
func RegisterDispatchServer(s grpc.ServiceRegistrar, srv DispatchServer) {
	s.RegisterService(&dispatchServiceDesc, srv)
}

var dispatchServiceDesc = grpc.ServiceDesc{
	ServiceName: DispatchService,
	HandlerType: (*DispatchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: unaryHandler(MethodInvoke, DispatchServer.Invoke)},
		{MethodName: "InvokeAsync", Handler: unaryHandler(MethodInvokeAsync, DispatchServer.InvokeAsync)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tasklet/v1/dispatch.proto",
}

type unaryMethod func(DispatchServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

func unaryHandler(fullMethod string, m unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.BytesValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return m(srv.(DispatchServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return m(srv.(DispatchServer), ctx, req.(*wrapperspb.BytesValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}
