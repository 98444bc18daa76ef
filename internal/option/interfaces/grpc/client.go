package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// OptionClient 期权服务客户端
type OptionClient struct {
	cc grpc.ClientConnInterface
}

func NewOptionClient(cc grpc.ClientConnInterface) *OptionClient {
	return &OptionClient{cc: cc}
}

// Call 调用任一方法，sender 为空时不附带身份
func (c *OptionClient) Call(ctx context.Context, method, sender string, req map[string]interface{}) (map[string]interface{}, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	if sender != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, MetadataSender, sender)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
