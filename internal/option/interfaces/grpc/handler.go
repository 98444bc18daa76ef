// Package grpc 以 gRPC 暴露期权服务
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/wyfcoding/optionescrow/internal/option/application"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// MetadataSender 调用者身份的 metadata 键
const MetadataSender = "x-sender"

// Handler gRPC 处理器
type Handler struct {
	service *application.OptionAppService
	logger  *slog.Logger
}

// NewHandler 创建 gRPC 处理器实例
func NewHandler(service *application.OptionAppService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Instantiate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.invoke(ctx, domain.ActionInstantiate, req, false)
}

func (h *Handler) Transfer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.invoke(ctx, domain.ActionTransfer, req, false)
}

func (h *Handler) Execute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.invoke(ctx, domain.ActionExecute, req, false)
}

func (h *Handler) Burn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return h.invoke(ctx, domain.ActionBurn, req, false)
}

// Simulate 请求中的 command 字段指定要试运行的命令
func (h *Handler) Simulate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	action, _ := fields["command"].(string)
	delete(fields, "command")
	rest, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return h.invoke(ctx, action, rest, true)
}

func (h *Handler) Config(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	cfg, err := h.service.Config(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(cfg)
}

func (h *Handler) Status(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := h.service.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(st)
}

// History 可选字段 limit，默认 50
func (h *Handler) History(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := 50
	if v, ok := req.GetFields()["limit"]; ok {
		limit = int(v.GetNumberValue())
	}
	if limit <= 0 || limit > 500 {
		return nil, status.Error(codes.InvalidArgument, "limit must be between 1 and 500")
	}
	entries, err := h.service.History(ctx, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]interface{}{"entries": entries})
}

func (h *Handler) invoke(ctx context.Context, action string, req *structpb.Struct, dryRun bool) (*structpb.Struct, error) {
	sender := senderFromContext(ctx)
	if sender == "" {
		return nil, status.Error(codes.Unauthenticated, "x-sender metadata is required")
	}

	if err := checkIntegers(req, "expires"); err != nil {
		return nil, toStatus(err)
	}
	body, err := req.MarshalJSON()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cmd, funds, err := application.DecodeCommand(action, body)
	if err != nil {
		return nil, toStatus(err)
	}

	inv := application.Invocation{Sender: sender, Funds: funds}
	var result *application.ResultDTO
	if dryRun {
		result, err = h.service.Simulate(ctx, inv, cmd)
	} else {
		result, err = h.service.Invoke(ctx, inv, cmd)
	}
	if err != nil {
		if domain.Code(err) == "internal" {
			h.logger.ErrorContext(ctx, "gRPC option command failed", "action", action, "error", err)
		}
		return nil, toStatus(err)
	}
	return toStruct(result)
}

// maxExactInteger 2^53，Struct 中的数字是 float64，超过它的整数无法精确表示
const maxExactInteger = 1 << 53

// checkIntegers 拒绝非整数、负数或超出精确范围的数字字段
func checkIntegers(req *structpb.Struct, fields ...string) error {
	for _, name := range fields {
		v, ok := req.GetFields()[name]
		if !ok {
			continue
		}
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			continue
		}
		f := n.NumberValue
		if f < 0 || f > maxExactInteger || f != math.Trunc(f) {
			return fmt.Errorf("%w: %s must be an integer between 0 and 2^53", domain.ErrInvalidRequest, name)
		}
	}
	return nil
}

func senderFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(MetadataSender); len(v) > 0 {
		return v[0]
	}
	return ""
}

// toStatus 领域错误码放在消息前缀，客户端据此还原
func toStatus(err error) error {
	code := domain.Code(err)
	var c codes.Code
	switch code {
	case "not_found":
		c = codes.NotFound
	case "already_instantiated":
		c = codes.AlreadyExists
	case "unauthorized":
		c = codes.PermissionDenied
	case "invalid_address", "invalid_coins", "unknown_command", "invalid_request":
		c = codes.InvalidArgument
	case "option_expired", "option_not_expired", "counter_offer_mismatch", "funds_sent_with_burn":
		c = codes.FailedPrecondition
	default:
		return status.Error(codes.Internal, "internal: internal error")
	}
	return status.Error(c, code+": "+err.Error())
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

var _ OptionServiceServer = (*Handler)(nil)
