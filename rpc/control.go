// Package rpc exposes the engine's views and commands as a gRPC service so
// the tool can be driven from scripts and the command line client.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "mtu.Control"

	methodGetView = "/" + ServiceName + "/GetView"
	methodExecute = "/" + ServiceName + "/Execute"
	methodWatch   = "/" + ServiceName + "/Watch"
)

// Message fields. Requests and responses are google.protobuf.Struct values:
//
//	GetView  {view}                   -> {<view>: model, ...}
//	Execute  {view, command, args}    -> {status}
//	Watch    Empty                    -> stream {view, model}
//
// An empty view in GetView returns every view.
const (
	FieldView    = "view"
	FieldCommand = "command"
	FieldArgs    = "args"
	FieldModel   = "model"
	FieldStatus  = "status"
)

// ControlServer is the server API for the mtu.Control service.
type ControlServer interface {
	GetView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Watch(*emptypb.Empty, Control_WatchServer) error
}

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&Control_ServiceDesc, srv)
}

func _Control_GetView_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetView(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetView,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).GetView(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Execute_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodExecute,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(m, &controlWatchServer{stream})
}

type Control_WatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type controlWatchServer struct {
	grpc.ServerStream
}

func (x *controlWatchServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// Control_ServiceDesc is the grpc.ServiceDesc for the mtu.Control service.
var Control_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetView",
			Handler:    _Control_GetView_Handler,
		},
		{
			MethodName: "Execute",
			Handler:    _Control_Execute_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       _Control_Watch_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "mtu/control.proto",
}

// ControlClient is the client API for the mtu.Control service.
type ControlClient interface {
	GetView(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Execute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Control_WatchClient, error)
}

type controlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) ControlClient {
	return &controlClient{cc}
}

func (c *controlClient) GetView(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodGetView, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Execute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodExecute, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Control_WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &Control_ServiceDesc.Streams[0], methodWatch, opts...)
	if err != nil {
		return nil, err
	}
	x := &controlWatchClient{stream}
	if err = x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err = x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type Control_WatchClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type controlWatchClient struct {
	grpc.ClientStream
}

func (x *controlWatchClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
