// Package chain 提供宿主环境原语：地址校验与区块高度时钟。
package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// AddressConfig 地址规则
type AddressConfig struct {
	Prefix    string
	MinLength int
	MaxLength int
}

// AddressValidator 基于 validator/v10 的地址校验
type AddressValidator struct {
	validate *validator.Validate
	tag      string
}

// NewAddressValidator 创建地址校验器，长度为 0 时使用默认区间 [3, 64]
func NewAddressValidator(cfg AddressConfig) *AddressValidator {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 3
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 64
	}
	tag := fmt.Sprintf("required,lowercase,alphanum,min=%d,max=%d", cfg.MinLength, cfg.MaxLength)
	if cfg.Prefix != "" {
		tag += ",startswith=" + strings.ToLower(cfg.Prefix)
	}
	return &AddressValidator{validate: validator.New(), tag: tag}
}

// Validate 校验原始字符串并返回规范地址。不做大小写折叠，大写输入直接拒绝。
func (v *AddressValidator) Validate(raw string) (domain.Addr, error) {
	if err := v.validate.Var(raw, v.tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return "", &domain.AddressError{Raw: raw, Reason: "failed rule " + verrs[0].Tag()}
		}
		return "", &domain.AddressError{Raw: raw, Reason: err.Error()}
	}
	return domain.Addr(raw), nil
}

var _ domain.AddressValidator = (*AddressValidator)(nil)
