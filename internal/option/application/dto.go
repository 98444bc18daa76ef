package application

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// CoinDTO 金额以十进制字符串传输
type CoinDTO struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type OptionDTO struct {
	Creator      string    `json:"creator"`
	Owner        string    `json:"owner"`
	Collateral   []CoinDTO `json:"collateral"`
	CounterOffer []CoinDTO `json:"counter_offer"`
	Expires      uint64    `json:"expires"`
}

type BankSendDTO struct {
	ToAddress string    `json:"to_address"`
	Amount    []CoinDTO `json:"amount"`
}

type AttributeDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ResultDTO 一次命令调用的输出
type ResultDTO struct {
	Action     string         `json:"action"`
	Height     uint64         `json:"height"`
	Committed  bool           `json:"committed"`
	Messages   []BankSendDTO  `json:"messages"`
	Attributes []AttributeDTO `json:"attributes"`
}

// StatusDTO 生命周期状态与到期信息
type StatusDTO struct {
	State             string     `json:"state"`
	Height            uint64     `json:"height"`
	Expired           bool       `json:"expired"`
	BlocksUntilExpiry uint64     `json:"blocks_until_expiry"`
	Option            *OptionDTO `json:"option,omitempty"`
}

type HistoryDTO struct {
	Action     string         `json:"action"`
	Sender     string         `json:"sender"`
	Height     uint64         `json:"height"`
	Messages   []BankSendDTO  `json:"messages"`
	Attributes []AttributeDTO `json:"attributes"`
	OccurredAt int64          `json:"occurred_at"`
}

// ParseCoins 把传输层的金额解析为领域 Coins 并规范化
func ParseCoins(in []CoinDTO) (domain.Coins, error) {
	coins := make(domain.Coins, 0, len(in))
	for _, c := range in {
		amount, err := decimal.NewFromString(c.Amount)
		if err != nil {
			return nil, &domain.CoinsError{Denom: c.Denom, Reason: "amount " + strconv.Quote(c.Amount) + " is not a number"}
		}
		coins = append(coins, domain.Coin{Denom: c.Denom, Amount: amount})
	}
	return domain.NormalizeCoins(coins)
}

func toCoinDTOs(coins domain.Coins) []CoinDTO {
	out := make([]CoinDTO, 0, len(coins))
	for _, c := range coins {
		out = append(out, CoinDTO{Denom: c.Denom, Amount: c.Amount.String()})
	}
	return out
}

func toOptionDTO(o *domain.Option) *OptionDTO {
	if o == nil {
		return nil
	}
	return &OptionDTO{
		Creator:      o.Creator.String(),
		Owner:        o.Owner.String(),
		Collateral:   toCoinDTOs(o.Collateral),
		CounterOffer: toCoinDTOs(o.CounterOffer),
		Expires:      o.Expires,
	}
}

func toBankSendDTOs(msgs []domain.BankSend) []BankSendDTO {
	out := make([]BankSendDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, BankSendDTO{ToAddress: m.ToAddress.String(), Amount: toCoinDTOs(m.Amount)})
	}
	return out
}

func toAttributeDTOs(attrs []domain.Attribute) []AttributeDTO {
	out := make([]AttributeDTO, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, AttributeDTO{Key: a.Key, Value: a.Value})
	}
	return out
}

func toResultDTO(action string, height uint64, committed bool, resp domain.Response) *ResultDTO {
	return &ResultDTO{
		Action:     action,
		Height:     height,
		Committed:  committed,
		Messages:   toBankSendDTOs(resp.Messages),
		Attributes: toAttributeDTOs(resp.Attributes),
	}
}

func toHistoryDTO(e domain.HistoryEntry) HistoryDTO {
	return HistoryDTO{
		Action:     e.Action,
		Sender:     e.Sender.String(),
		Height:     e.Height,
		Messages:   toBankSendDTOs(e.Messages),
		Attributes: toAttributeDTOs(e.Attributes),
		OccurredAt: e.OccurredAt.UnixMilli(),
	}
}

// TransferInstruction 投递到转账主题的消息体，由宿主的出账组件消费
type TransferInstruction struct {
	ToAddress string    `json:"to_address"`
	Amount    []CoinDTO `json:"amount"`
	Action    string    `json:"action"`
	Height    uint64    `json:"height"`
}

// OptionEvent 投递到事件主题的消息体
type OptionEvent struct {
	Action     string         `json:"action"`
	Sender     string         `json:"sender"`
	Height     uint64         `json:"height"`
	Attributes []AttributeDTO `json:"attributes"`
	OccurredAt time.Time      `json:"occurred_at"`
}
