package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 服务全名
const ServiceName = "option.v1.OptionService"

// 方法名
const (
	MethodInstantiate = "Instantiate"
	MethodTransfer    = "Transfer"
	MethodExecute     = "Execute"
	MethodBurn        = "Burn"
	MethodSimulate    = "Simulate"
	MethodConfig      = "Config"
	MethodStatus      = "Status"
	MethodHistory     = "History"
)

// OptionServiceServer 期权 gRPC 服务，请求与响应均为 google.protobuf.Struct
type OptionServiceServer interface {
	Instantiate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transfer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Burn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Config(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterOptionServiceServer 注册服务
func RegisterOptionServiceServer(s grpc.ServiceRegistrar, srv OptionServiceServer) {
	s.RegisterService(&OptionServiceDesc, srv)
}

// FullMethod 返回 /option.v1.OptionService/<method>
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler(method string, call func(OptionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(OptionServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(OptionServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// OptionServiceDesc 手写的服务描述，等价于 protoc 生成的 _ServiceDesc
var OptionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OptionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodInstantiate, OptionServiceServer.Instantiate),
		unaryHandler(MethodTransfer, OptionServiceServer.Transfer),
		unaryHandler(MethodExecute, OptionServiceServer.Execute),
		unaryHandler(MethodBurn, OptionServiceServer.Burn),
		unaryHandler(MethodSimulate, OptionServiceServer.Simulate),
		unaryHandler(MethodConfig, OptionServiceServer.Config),
		unaryHandler(MethodStatus, OptionServiceServer.Status),
		unaryHandler(MethodHistory, OptionServiceServer.History),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "option/v1/option.proto",
}
