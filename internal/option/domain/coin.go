package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Coin 单一币种的资金数量
type Coin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// NewCoin 以整数数量构造 Coin
func NewCoin(amount int64, denom string) Coin {
	return Coin{Denom: denom, Amount: decimal.NewFromInt(amount)}
}

func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

// Coins 资金多重集合，同一币种至多出现一次
type Coins []Coin

// NewCoins 构造只含一个币种的 Coins，等价于 coins(amount, denom)
func NewCoins(amount int64, denom string) Coins {
	return Coins{NewCoin(amount, denom)}
}

// NormalizeCoins 校验并规范化资金集合：
// 拒绝空币种、负数或非整数金额、重复币种；丢弃数量为零的条目；按币种排序后返回副本。
func NormalizeCoins(in Coins) (Coins, error) {
	out := make(Coins, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		denom := strings.TrimSpace(c.Denom)
		if denom == "" {
			return nil, &CoinsError{Reason: "empty denom"}
		}
		if _, dup := seen[denom]; dup {
			return nil, &CoinsError{Denom: denom, Reason: "duplicate denom"}
		}
		seen[denom] = struct{}{}
		if c.Amount.IsNegative() {
			return nil, &CoinsError{Denom: denom, Reason: "negative amount"}
		}
		if !c.Amount.IsInteger() {
			return nil, &CoinsError{Denom: denom, Reason: "fractional amount"}
		}
		if c.Amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: c.Amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out, nil
}

// IsEmpty 集合中没有任何非零资金
func (cs Coins) IsEmpty() bool {
	for _, c := range cs {
		if !c.Amount.IsZero() {
			return false
		}
	}
	return true
}

// Equal 多重集合相等：与顺序无关，币种与数量必须精确一致。
func (cs Coins) Equal(other Coins) bool {
	if len(cs) != len(other) {
		return false
	}
	a := cs.sorted()
	b := other.sorted()
	for i := range a {
		if a[i].Denom != b[i].Denom || !a[i].Amount.Equal(b[i].Amount) {
			return false
		}
	}
	return true
}

// Clone 深拷贝
func (cs Coins) Clone() Coins {
	if cs == nil {
		return nil
	}
	out := make(Coins, len(cs))
	copy(out, cs)
	return out
}

func (cs Coins) String() string {
	if len(cs) == 0 {
		return ""
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

func (cs Coins) sorted() Coins {
	out := cs.Clone()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}

// CoinsError 资金集合格式错误
type CoinsError struct {
	Denom  string
	Reason string
}

func (e *CoinsError) Error() string {
	if e.Denom == "" {
		return fmt.Sprintf("invalid coins: %s", e.Reason)
	}
	return fmt.Sprintf("invalid coins: %s (%s)", e.Reason, e.Denom)
}

func (e *CoinsError) Unwrap() error { return ErrInvalidCoins }
