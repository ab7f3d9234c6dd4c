package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/graviton-inventory/internal/models"
	"github.com/miradorstack/graviton-inventory/internal/summary"
)

// Fully qualified method names.
const (
	ServiceName  = "inventory.v1.Inventory"
	DetectMethod = "/" + ServiceName + "/Detect"
)

// DetectRequest asks for one detection run.
type DetectRequest struct {
	ScanID string `json:"scan_id"`
}

// DetectResponse carries the run and its summary.
type DetectResponse struct {
	Result  models.RunResult `json:"result"`
	Summary summary.Summary  `json:"summary"`
}

// InventoryServer is implemented by the inventory service.
type InventoryServer interface {
	Detect(ctx context.Context, req *DetectRequest) (*DetectResponse, error)
}

// ServiceDesc describes the Inventory service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: detectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// RegisterInventoryServer attaches srv to s.
func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func detectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return serveDetect(ctx, srv.(InventoryServer), in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return serveDetect(ctx, srv.(InventoryServer), req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func serveDetect(ctx context.Context, srv InventoryServer, in *structpb.Struct) (*structpb.Struct, error) {
	var req DetectRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("decode request: %v", err))
	}
	resp, err := srv.Detect(ctx, &req)
	if err != nil {
		return nil, err
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

// toStruct converts a JSON-tagged value into a google.protobuf.Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStruct decodes s into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		s = new(structpb.Struct)
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Client calls the Inventory service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Detect runs a detection on the server side.
func (c *Client) Detect(ctx context.Context, req *DetectRequest, opts ...grpc.CallOption) (*DetectResponse, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DetectMethod, in, out, opts...); err != nil {
		return nil, err
	}
	resp := new(DetectResponse)
	if err := fromStruct(out, resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
