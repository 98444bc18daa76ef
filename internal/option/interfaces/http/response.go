package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// Response 统一响应结构
type Response struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: "ok", Message: "success", Data: data})
}

func errorWithStatus(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

// fail 按领域错误码映射 HTTP 状态
func fail(c *gin.Context, err error) {
	code := domain.Code(err)
	status := statusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	errorWithStatus(c, status, code, message)
}

func statusFor(code string) int {
	switch code {
	case "not_found":
		return http.StatusNotFound
	case "already_instantiated":
		return http.StatusConflict
	case "unauthorized":
		return http.StatusForbidden
	case "invalid_address", "invalid_coins", "unknown_command", "invalid_request":
		return http.StatusBadRequest
	case "option_expired", "option_not_expired", "counter_offer_mismatch", "funds_sent_with_burn":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

var errEmptySender = errors.New("X-Sender header is required")
