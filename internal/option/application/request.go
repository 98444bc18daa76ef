package application

import (
	"encoding/json"
	"fmt"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// 各命令的请求体，HTTP 与 gRPC 共用同一 JSON 形态

type FundsRequest struct {
	Funds []CoinDTO `json:"funds"`
}

type InstantiateRequest struct {
	FundsRequest
	CounterOffer []CoinDTO `json:"counter_offer"`
	Expires      uint64    `json:"expires"`
}

type TransferRequest struct {
	FundsRequest
	Recipient string `json:"recipient"`
}

// DecodeCommand 按动作名解析请求体，返回命令与附带资金
func DecodeCommand(action string, body []byte) (domain.Command, domain.Coins, error) {
	var (
		cmd   domain.Command
		funds []CoinDTO
	)
	switch action {
	case domain.ActionInstantiate:
		var req InstantiateRequest
		if err := decodeRequest(body, &req); err != nil {
			return nil, nil, err
		}
		counterOffer, err := ParseCoins(req.CounterOffer)
		if err != nil {
			return nil, nil, err
		}
		cmd, funds = domain.InstantiateCommand{CounterOffer: counterOffer, Expires: req.Expires}, req.Funds
	case domain.ActionTransfer:
		var req TransferRequest
		if err := decodeRequest(body, &req); err != nil {
			return nil, nil, err
		}
		cmd, funds = domain.TransferCommand{Recipient: req.Recipient}, req.Funds
	case domain.ActionExecute, domain.ActionBurn:
		var req FundsRequest
		if err := decodeRequest(body, &req); err != nil {
			return nil, nil, err
		}
		funds = req.Funds
		cmd = domain.ExecuteCommand{}
		if action == domain.ActionBurn {
			cmd = domain.BurnCommand{}
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, action)
	}
	coins, err := ParseCoins(funds)
	if err != nil {
		return nil, nil, err
	}
	return cmd, coins, nil
}

func decodeRequest(body []byte, dest interface{}) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
