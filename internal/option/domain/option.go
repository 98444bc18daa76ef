// Package domain 提供了托管期权（Escrow Option）领域模型。
// 一个部署只承载一份期权：创建者存入抵押品并给出对价，持有人在到期高度之前支付对价即可取走抵押品，
// 持有权可以转让；到期未行权时任何人都可以触发回收，抵押品退回创建者。
package domain

import (
	"context"
)

// Addr 已经过校验的链上身份
type Addr string

func (a Addr) String() string { return string(a) }

// Option 期权记录（单例）
type Option struct {
	Creator      Addr   `json:"creator"`
	Owner        Addr   `json:"owner"`
	Collateral   Coins  `json:"collateral"`
	CounterOffer Coins  `json:"counter_offer"`
	Expires      uint64 `json:"expires"`
}

// Clone 返回深拷贝，状态机从不修改调用方持有的记录
func (o *Option) Clone() *Option {
	if o == nil {
		return nil
	}
	return &Option{
		Creator:      o.Creator,
		Owner:        o.Owner,
		Collateral:   o.Collateral.Clone(),
		CounterOffer: o.CounterOffer.Clone(),
		Expires:      o.Expires,
	}
}

// IsExpired 当前高度达到或超过 Expires 即视为过期
func (o *Option) IsExpired(height uint64) bool {
	return height >= o.Expires
}

// BlocksUntilExpiry 距离过期还剩多少个区块，已过期返回 0
func (o *Option) BlocksUntilExpiry(height uint64) uint64 {
	if o.IsExpired(height) {
		return 0
	}
	return o.Expires - height
}

// Env 宿主环境在每次调用时提供的上下文
type Env struct {
	Height uint64
}

// MessageInfo 调用者身份与随调用附带的资金
type MessageInfo struct {
	Sender Addr
	Funds  Coins
}

// NewMessageInfo 规范化附带资金后构造 MessageInfo
func NewMessageInfo(sender Addr, funds Coins) (MessageInfo, error) {
	normalized, err := NormalizeCoins(funds)
	if err != nil {
		return MessageInfo{}, err
	}
	return MessageInfo{Sender: sender, Funds: normalized}, nil
}

// AddressValidator 身份格式校验
type AddressValidator interface {
	Validate(raw string) (Addr, error)
}

// Clock 逻辑时钟（区块高度）
type Clock interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}
