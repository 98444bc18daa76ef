// Package http 暴露期权服务的 REST 接口
package http

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/wyfcoding/optionescrow/internal/option/application"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// HeaderSender 调用者身份
const HeaderSender = "X-Sender"

//go:embed schemas/*.json
var schemaFS embed.FS

// OptionHandler HTTP 处理器
type OptionHandler struct {
	svc     *application.OptionAppService
	schemas map[string]*jsonschema.Schema
	logger  *slog.Logger
}

// NewOptionHandler 编译请求体 schema 并创建处理器
func NewOptionHandler(svc *application.OptionAppService, logger *slog.Logger) (*OptionHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schemas := make(map[string]*jsonschema.Schema)
	for action, file := range map[string]string{
		domain.ActionInstantiate: "schemas/instantiate.json",
		domain.ActionTransfer:    "schemas/transfer.json",
		domain.ActionExecute:     "schemas/funds.json",
		domain.ActionBurn:        "schemas/funds.json",
	} {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, err
		}
		schema, err := jsonschema.CompileString(file, string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", file, err)
		}
		schemas[action] = schema
	}
	return &OptionHandler{svc: svc, schemas: schemas, logger: logger}, nil
}

// RegisterRoutes 注册路由
func (h *OptionHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/option")
	{
		api.POST("/instantiate", h.Instantiate)
		api.POST("/transfer", h.Transfer)
		api.POST("/execute", h.Execute)
		api.POST("/burn", h.Burn)
		api.POST("/simulate/:command", h.Simulate)
		api.GET("/config", h.Config)
		api.GET("/status", h.Status)
		api.GET("/history", h.History)
	}
}

func (h *OptionHandler) Instantiate(c *gin.Context) { h.invoke(c, domain.ActionInstantiate, false) }
func (h *OptionHandler) Transfer(c *gin.Context)    { h.invoke(c, domain.ActionTransfer, false) }
func (h *OptionHandler) Execute(c *gin.Context)     { h.invoke(c, domain.ActionExecute, false) }
func (h *OptionHandler) Burn(c *gin.Context)        { h.invoke(c, domain.ActionBurn, false) }

// Simulate 试运行，不提交
func (h *OptionHandler) Simulate(c *gin.Context) {
	h.invoke(c, c.Param("command"), true)
}

func (h *OptionHandler) invoke(c *gin.Context, action string, dryRun bool) {
	sender := c.GetHeader(HeaderSender)
	if sender == "" {
		errorWithStatus(c, http.StatusUnauthorized, "unauthorized", errEmptySender.Error())
		return
	}

	schema, ok := h.schemas[action]
	if !ok {
		fail(c, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, action))
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		errorWithStatus(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if err := validateBody(schema, body); err != nil {
		errorWithStatus(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cmd, funds, err := application.DecodeCommand(action, body)
	if err != nil {
		fail(c, err)
		return
	}
	inv := application.Invocation{Sender: sender, Funds: funds}

	ctx := c.Request.Context()
	var result *application.ResultDTO
	if dryRun {
		result, err = h.svc.Simulate(ctx, inv, cmd)
	} else {
		result, err = h.svc.Invoke(ctx, inv, cmd)
	}
	if err != nil {
		if domain.Code(err) == "internal" {
			h.logger.ErrorContext(ctx, "option command failed", "action", action, "error", err)
		}
		fail(c, err)
		return
	}
	success(c, result)
}

func validateBody(schema *jsonschema.Schema, body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	return schema.Validate(doc)
}

// Config 查询当前期权
func (h *OptionHandler) Config(c *gin.Context) {
	cfg, err := h.svc.Config(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, cfg)
}

// Status 生命周期状态
func (h *OptionHandler) Status(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	success(c, status)
}

// History 审计记录，limit 默认 50
func (h *OptionHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		errorWithStatus(c, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
		return
	}
	entries, err := h.svc.History(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, entries)
}
