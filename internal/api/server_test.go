package api

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/graviton-inventory/internal/config"
	"github.com/miradorstack/graviton-inventory/internal/models"
)

type fakeInventory struct {
	lastScan string
}

func (f *fakeInventory) Detect(_ context.Context, req *DetectRequest) (*DetectResponse, error) {
	if req.ScanID == "" {
		return nil, status.Error(codes.InvalidArgument, "scan_id is required")
	}
	f.lastScan = req.ScanID
	return &DetectResponse{Result: models.RunResult{
		ScanID: req.ScanID,
		Records: []models.DetectionRecord{
			{ApplicationKey: "redis", ResolvedVersion: "6.2.6", CompatibilityStatus: models.StatusCompatible},
		},
	}}, nil
}

func startBufServer(t *testing.T, svc InventoryServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServerWithListener(lis, config.ServerConfig{GracefulTimeout: time.Second}, svc)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDetectOverGRPC(t *testing.T) {
	svc := &fakeInventory{}
	conn := startBufServer(t, svc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := NewClient(conn).Detect(ctx, &DetectRequest{ScanID: "scan-7"})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if svc.lastScan != "scan-7" {
		t.Fatalf("server saw scan %q", svc.lastScan)
	}
	if len(resp.Result.Records) != 1 || resp.Result.Records[0].ResolvedVersion != "6.2.6" {
		t.Fatalf("unexpected response %+v", resp.Result)
	}
}

func TestDetectPropagatesStatus(t *testing.T) {
	conn := startBufServer(t, &fakeInventory{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewClient(conn).Detect(ctx, &DetectRequest{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestHealthService(t *testing.T) {
	conn := startBufServer(t, &fakeInventory{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestDetectRejectsMalformedRequest(t *testing.T) {
	conn := startBufServer(t, &fakeInventory{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]interface{}{"scan_id": 42})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	err = conn.Invoke(ctx, DetectMethod, in, new(structpb.Struct))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDetectAcceptsPlainProtoClients(t *testing.T) {
	conn := startBufServer(t, &fakeInventory{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	in, err := structpb.NewStruct(map[string]interface{}{"scan_id": "scan-9"})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, DetectMethod, in, out); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	result := out.GetFields()["result"].GetStructValue()
	if got := result.GetFields()["scan_id"].GetStringValue(); got != "scan-9" {
		t.Fatalf("expected scan-9 in response, got %q", got)
	}
}

func TestInventoryDescriptorRegistered(t *testing.T) {
	desc, err := protoregistry.GlobalFiles.FindDescriptorByName(protoreflect.FullName(ServiceName))
	if err != nil {
		t.Fatalf("find service: %v", err)
	}
	svc, ok := desc.(protoreflect.ServiceDescriptor)
	if !ok {
		t.Fatalf("expected service descriptor, got %T", desc)
	}
	method := svc.Methods().ByName("Detect")
	if method == nil || method.Input().FullName() != "google.protobuf.Struct" {
		t.Fatalf("unexpected Detect method %v", method)
	}
	if svc.ParentFile().Path() != FileName {
		t.Fatalf("unexpected file %s", svc.ParentFile().Path())
	}
	if _, err := registerFile(protoregistry.GlobalFiles); err != nil {
		t.Fatalf("re-registering must be a no-op: %v", err)
	}
}
