package executor

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/oriys/tasklet/internal/domain"
	"github.com/oriys/tasklet/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type stubDispatchServer struct {
	lastAddress string
}

func (s *stubDispatchServer) address(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(wire.FunctionMetadataKey); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (s *stubDispatchServer) Invoke(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	s.lastAddress = s.address(ctx)
	switch s.lastAddress {
	case "missing":
		return nil, status.Error(codes.NotFound, "no function missing")
	case "crash":
		return nil, status.Error(codes.Aborted, "bad args")
	case "broken":
		return nil, status.Error(codes.Internal, "boom")
	}
	var req wire.Request
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	args, _ := req.Args()
	body, _ := json.Marshal(wire.NewResponse(&wire.Outcome{Result: args}))
	return wrapperspb.Bytes(body), nil
}

func (s *stubDispatchServer) InvokeAsync(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	s.lastAddress = s.address(ctx)
	return wrapperspb.Bytes(nil), nil
}

func newBufconnTransport(t *testing.T, srv wire.DispatchServer) *GRPCTransport {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	wire.RegisterDispatchServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	tr, err := DialGRPC("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("DialGRPC: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestGRPCTransportInvoke(t *testing.T) {
	stub := &stubDispatchServer{}
	tr := newBufconnTransport(t, stub)

	reply, err := tr.Send(context.Background(), "demo-add", wire.NewRequest([]byte("7")), domain.ModeInvoke)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Status != wire.StatusOK || stub.lastAddress != "demo-add" {
		t.Fatalf("reply %+v for %q", reply, stub.lastAddress)
	}
	resp, err := wire.DecodeResponse(reply.Body)
	if err != nil {
		t.Fatal(err)
	}
	out, err := resp.Outcome()
	if err != nil || string(out.Result) != "7" {
		t.Fatalf("outcome %+v, %v", out, err)
	}
}

func TestGRPCTransportInvokeAsync(t *testing.T) {
	stub := &stubDispatchServer{}
	tr := newBufconnTransport(t, stub)

	reply, err := tr.Send(context.Background(), "demo-add", wire.NewRequest(nil), domain.ModeInvokeAsync)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Status != wire.StatusAccepted {
		t.Fatalf("Status = %d", reply.Status)
	}
}

func TestGRPCTransportStatusMapping(t *testing.T) {
	tr := newBufconnTransport(t, &stubDispatchServer{})

	reply, err := tr.Send(context.Background(), "missing", wire.NewRequest(nil), domain.ModeInvoke)
	if err != nil || reply.Status != 404 {
		t.Fatalf("missing: %+v, %v", reply, err)
	}

	reply, err = tr.Send(context.Background(), "crash", wire.NewRequest(nil), domain.ModeInvoke)
	if err != nil || reply.FunctionError == "" || wire.ErrorMessage(reply.Body) != "bad args" {
		t.Fatalf("crash: %+v, %v", reply, err)
	}

	if _, err := tr.Send(context.Background(), "broken", wire.NewRequest(nil), domain.ModeInvoke); err == nil {
		t.Fatal("broken: expected transport error")
	}
}
