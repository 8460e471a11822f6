package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/observability"
	"github.com/oriys/tasklet/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GRPCTransport calls the tasklet.v1.Dispatch service.
type GRPCTransport struct {
	conn  *grpc.ClientConn
	owned bool
}

// DialGRPC connects to target without transport security.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCTransport, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to dispatch gRPC %s: %w", target, err)
	}
	return &GRPCTransport{conn: conn, owned: true}, nil
}

// NewGRPCTransport uses an existing connection. Close leaves it open.
func NewGRPCTransport(conn *grpc.ClientConn) *GRPCTransport {
	return &GRPCTransport{conn: conn}
}

func (t *GRPCTransport) Name() string { return "grpc" }

func (t *GRPCTransport) Send(ctx context.Context, address string, req *wire.Request, mode domain.ExecutionMode) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	method, okStatus := wire.MethodInvoke, wire.StatusOK
	if mode == domain.ModeInvokeAsync {
		method, okStatus = wire.MethodInvokeAsync, wire.StatusAccepted
	}

	ctx = metadata.AppendToOutgoingContext(ctx, wire.FunctionMetadataKey, address)
	ctx = observability.OutgoingGRPC(ctx)

	out := new(wrapperspb.BytesValue)
	if err := t.conn.Invoke(ctx, method, wrapperspb.Bytes(body), out); err != nil {
		st, ok := status.FromError(err)
		if !ok {
			return nil, err
		}
		return replyFromStatus(st, okStatus)
	}
	return &Reply{Status: okStatus, Body: out.GetValue()}, nil
}

// replyFromStatus maps the codes the execution side uses on purpose back to
// a Reply. Anything else is a transport failure.
func replyFromStatus(st *status.Status, okStatus int) (*Reply, error) {
	body, _ := json.Marshal(wire.ErrorBody{ErrorMessage: st.Message(), ErrorType: st.Code().String()})
	switch st.Code() {
	case codes.Aborted:
		return &Reply{Status: okStatus, FunctionError: wire.FunctionErrorUnhandled, Body: body}, nil
	case codes.NotFound:
		return &Reply{Status: 404, Body: body}, nil
	case codes.InvalidArgument:
		return &Reply{Status: 400, Body: body}, nil
	default:
		return nil, st.Err()
	}
}

func (t *GRPCTransport) Close() error {
	if t.owned && t.conn != nil {
		return t.conn.Close()
	}
	return nil
}
