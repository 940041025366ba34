package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	serviceName = "yolodet.DetectService"

	DetectService_Detect_FullMethodName       = "/yolodet.DetectService/Detect"
	DetectService_ListProfiles_FullMethodName = "/yolodet.DetectService/ListProfiles"
	DetectService_CheckEngine_FullMethodName  = "/yolodet.DetectService/CheckEngine"
)

type DetectServiceServer interface {
	Detect(context.Context, *DetectRequest) (*DetectResponse, error)
	ListProfiles(context.Context, *emptypb.Empty) (*ListProfilesResponse, error)
	CheckEngine(context.Context, *CheckEngineRequest) (*EngineInfo, error)
}

func RegisterDetectServiceServer(s grpc.ServiceRegistrar, srv DetectServiceServer) {
	s.RegisterService(&DetectService_ServiceDesc, srv)
}

func _DetectService_Detect_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DetectRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectServiceServer).Detect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectService_Detect_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectServiceServer).Detect(ctx, req.(*DetectRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _DetectService_ListProfiles_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectServiceServer).ListProfiles(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectService_ListProfiles_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectServiceServer).ListProfiles(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _DetectService_CheckEngine_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckEngineRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectServiceServer).CheckEngine(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectService_CheckEngine_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectServiceServer).CheckEngine(ctx, req.(*CheckEngineRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var DetectService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DetectServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Detect", Handler: _DetectService_Detect_Handler},
		{MethodName: "ListProfiles", Handler: _DetectService_ListProfiles_Handler},
		{MethodName: "CheckEngine", Handler: _DetectService_CheckEngine_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "yolodet.proto",
}

// DetectServiceClient always requests the json content-subtype.
type DetectServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDetectServiceClient(cc grpc.ClientConnInterface) *DetectServiceClient {
	return &DetectServiceClient{cc: cc}
}

func (c *DetectServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *DetectServiceClient) Detect(ctx context.Context, in *DetectRequest, opts ...grpc.CallOption) (*DetectResponse, error) {
	out := new(DetectResponse)
	if err := c.invoke(ctx, DetectService_Detect_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectServiceClient) ListProfiles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ListProfilesResponse, error) {
	out := new(ListProfilesResponse)
	if err := c.invoke(ctx, DetectService_ListProfiles_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DetectServiceClient) CheckEngine(ctx context.Context, in *CheckEngineRequest, opts ...grpc.CallOption) (*EngineInfo, error) {
	out := new(EngineInfo)
	if err := c.invoke(ctx, DetectService_CheckEngine_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
