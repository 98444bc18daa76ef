package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOptionNotFound      = errors.New("option not found")
	ErrAlreadyInstantiated = errors.New("option already instantiated")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrFundsSentWithBurn   = errors.New("funds sent with burn")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrInvalidCoins        = errors.New("invalid coins")
	ErrUnknownCommand      = errors.New("unknown command")
	// ErrInvalidRequest 请求体无法解码为命令
	ErrInvalidRequest = errors.New("invalid request")
)

// OptionExpiredError 期权已过期（或创建时给出的过期高度不在未来）
type OptionExpiredError struct {
	Expired uint64
}

func (e *OptionExpiredError) Error() string {
	return fmt.Sprintf("option expired (expired %d)", e.Expired)
}

// OptionNotExpiredError 期权尚未过期，不能回收抵押品
type OptionNotExpiredError struct {
	Expires uint64
}

func (e *OptionNotExpiredError) Error() string {
	return fmt.Sprintf("option not yet expired (expires %d)", e.Expires)
}

// CounterOfferMismatchError 行权附带资金与对价不一致
type CounterOfferMismatchError struct {
	Offer        Coins
	CounterOffer Coins
}

func (e *CounterOfferMismatchError) Error() string {
	return fmt.Sprintf("must send exact counter offer: offer [%s], counter_offer [%s]", e.Offer, e.CounterOffer)
}

// AddressError 地址格式校验失败
type AddressError struct {
	Raw    string
	Reason string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Raw, e.Reason)
}

func (e *AddressError) Unwrap() error { return ErrInvalidAddress }

// Code 返回稳定的错误码，供接口层映射
func Code(err error) string {
	var (
		expired    *OptionExpiredError
		notExpired *OptionNotExpiredError
		mismatch   *CounterOfferMismatchError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &expired):
		return "option_expired"
	case errors.As(err, &notExpired):
		return "option_not_expired"
	case errors.As(err, &mismatch):
		return "counter_offer_mismatch"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrFundsSentWithBurn):
		return "funds_sent_with_burn"
	case errors.Is(err, ErrOptionNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyInstantiated):
		return "already_instantiated"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrInvalidCoins):
		return "invalid_coins"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}
