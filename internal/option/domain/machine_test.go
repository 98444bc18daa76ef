package domain_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

type stubValidator struct{}

func (stubValidator) Validate(raw string) (domain.Addr, error) {
	if raw == "" || strings.ToLower(raw) != raw || len(raw) < 3 {
		return "", &domain.AddressError{Raw: raw, Reason: "malformed"}
	}
	return domain.Addr(raw), nil
}

func info(t *testing.T, sender string, funds domain.Coins) domain.MessageInfo {
	t.Helper()
	mi, err := domain.NewMessageInfo(domain.Addr(sender), funds)
	if err != nil {
		t.Fatalf("message info: %v", err)
	}
	return mi
}

// apply 模拟宿主：成功时写回新状态，失败时保持原状态
func apply(t *testing.T, m *domain.Machine, state **domain.Option, height uint64, mi domain.MessageInfo, cmd domain.Command) (*domain.Transition, error) {
	t.Helper()
	tr, err := m.Handle(context.Background(), *state, domain.Env{Height: height}, mi, cmd)
	if err != nil {
		return nil, err
	}
	if tr.Deleted {
		*state = nil
	} else {
		*state = tr.Next
	}
	return tr, nil
}

func setup(t *testing.T) (*domain.Machine, *domain.Option) {
	t.Helper()
	m := domain.NewMachine(stubValidator{})
	var state *domain.Option
	_, err := apply(t, m, &state, 12_345, info(t, "creator", domain.NewCoins(1, "BTC")), domain.InstantiateCommand{
		CounterOffer: domain.NewCoins(40, "ETH"),
		Expires:      100_000,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return m, state
}

func TestProperInitialization(t *testing.T) {
	m := domain.NewMachine(stubValidator{})
	var state *domain.Option

	tr, err := apply(t, m, &state, 12_345, info(t, "creator", domain.NewCoins(1, "BTC")), domain.InstantiateCommand{
		CounterOffer: domain.NewCoins(40, "ETH"),
		Expires:      100_000,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if len(tr.Response.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(tr.Response.Messages))
	}
	if v, _ := tr.Response.Attr("action"); v != domain.ActionInstantiate {
		t.Fatalf("action = %q", v)
	}

	cfg, err := domain.QueryConfig(state)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if cfg.Expires != 100_000 {
		t.Errorf("expires = %d", cfg.Expires)
	}
	if cfg.Owner != "creator" || cfg.Creator != "creator" {
		t.Errorf("owner/creator = %s/%s", cfg.Owner, cfg.Creator)
	}
	if !cfg.Collateral.Equal(domain.NewCoins(1, "BTC")) {
		t.Errorf("collateral = %s", cfg.Collateral)
	}
	if !cfg.CounterOffer.Equal(domain.NewCoins(40, "ETH")) {
		t.Errorf("counter offer = %s", cfg.CounterOffer)
	}
}

func TestInstantiateExpired(t *testing.T) {
	for _, expires := range []uint64{0, 12_344, 12_345} {
		m := domain.NewMachine(stubValidator{})
		var state *domain.Option
		_, err := apply(t, m, &state, 12_345, info(t, "creator", domain.NewCoins(1, "BTC")), domain.InstantiateCommand{
			CounterOffer: domain.NewCoins(40, "ETH"),
			Expires:      expires,
		})
		var expired *domain.OptionExpiredError
		if !errors.As(err, &expired) {
			t.Fatalf("expires=%d: expected OptionExpired, got %v", expires, err)
		}
		if expired.Expired != expires {
			t.Errorf("expired = %d, want %d", expired.Expired, expires)
		}
		if state != nil {
			t.Errorf("expires=%d: record left behind", expires)
		}
	}
}

func TestInstantiateTwice(t *testing.T) {
	m, state := setup(t)
	before := state.Clone()
	_, err := apply(t, m, &state, 12_345, info(t, "other", nil), domain.InstantiateCommand{
		CounterOffer: domain.NewCoins(1, "ETH"),
		Expires:      200_000,
	})
	if !errors.Is(err, domain.ErrAlreadyInstantiated) {
		t.Fatalf("expected ErrAlreadyInstantiated, got %v", err)
	}
	if state.Creator != before.Creator || state.Expires != before.Expires {
		t.Fatalf("record changed: %+v", state)
	}
}

func TestInstantiateInvalidCounterOffer(t *testing.T) {
	m := domain.NewMachine(stubValidator{})
	var state *domain.Option
	_, err := apply(t, m, &state, 1, info(t, "creator", nil), domain.InstantiateCommand{
		CounterOffer: domain.Coins{domain.NewCoin(1, "ETH"), domain.NewCoin(2, "ETH")},
		Expires:      10,
	})
	if !errors.Is(err, domain.ErrInvalidCoins) {
		t.Fatalf("expected ErrInvalidCoins, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	m, state := setup(t)

	// 非持有人不能转让
	_, err := apply(t, m, &state, 12_345, info(t, "anyone", nil), domain.TransferCommand{Recipient: "anyone"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if state.Owner != "creator" {
		t.Fatalf("owner changed to %s", state.Owner)
	}

	// 非法地址与越权是不同的错误
	_, err = apply(t, m, &state, 12_345, info(t, "creator", nil), domain.TransferCommand{Recipient: "BAD"})
	if !errors.Is(err, domain.ErrInvalidAddress) || errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	tr, err := apply(t, m, &state, 12_345, info(t, "creator", nil), domain.TransferCommand{Recipient: "someone"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(tr.Response.Attributes) != 2 {
		t.Fatalf("attributes = %v", tr.Response.Attributes)
	}
	if tr.Response.Attributes[0] != (domain.Attribute{Key: "action", Value: "transfer"}) {
		t.Errorf("first attribute = %v", tr.Response.Attributes[0])
	}
	if v, _ := tr.Response.Attr("owner"); v != "someone" {
		t.Errorf("owner attribute = %q", v)
	}
	if len(tr.Response.Messages) != 0 {
		t.Errorf("transfer must not move funds")
	}

	cfg, _ := domain.QueryConfig(state)
	if cfg.Owner != "someone" || cfg.Creator != "creator" {
		t.Fatalf("owner/creator = %s/%s", cfg.Owner, cfg.Creator)
	}

	// 过期后仍可转让
	if _, err := apply(t, m, &state, 500_000, info(t, "someone", nil), domain.TransferCommand{Recipient: "third"}); err != nil {
		t.Fatalf("transfer after expiry: %v", err)
	}
}

func TestExecute(t *testing.T) {
	amount := domain.NewCoins(40, "ETH")
	collateral := domain.NewCoins(1, "BTC")

	m, state := setup(t)
	if _, err := apply(t, m, &state, 12_345, info(t, "creator", nil), domain.TransferCommand{Recipient: "owner"}); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	// 旧持有人不能行权
	_, err := apply(t, m, &state, 12_345, info(t, "creator", amount), domain.ExecuteCommand{})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	// 过期不能行权
	_, err = apply(t, m, &state, 200_000, info(t, "owner", amount), domain.ExecuteCommand{})
	var expired *domain.OptionExpiredError
	if !errors.As(err, &expired) || expired.Expired != 100_000 {
		t.Fatalf("expected OptionExpired{100000}, got %v", err)
	}
	_, err = apply(t, m, &state, 100_000, info(t, "owner", amount), domain.ExecuteCommand{})
	if !errors.As(err, &expired) {
		t.Fatalf("at expiry height: expected OptionExpired, got %v", err)
	}

	// 对价不匹配
	mismatches := []domain.Coins{
		domain.NewCoins(39, "ETH"),
		domain.NewCoins(41, "ETH"),
		domain.NewCoins(40, "BTC"),
		{domain.NewCoin(40, "ETH"), domain.NewCoin(1, "BTC")},
		nil,
	}
	for _, offer := range mismatches {
		_, err = apply(t, m, &state, 99_999, info(t, "owner", offer), domain.ExecuteCommand{})
		var mismatch *domain.CounterOfferMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("offer %s: expected CounterOfferMismatch, got %v", offer, err)
		}
		if !mismatch.Offer.Equal(offer) || !mismatch.CounterOffer.Equal(amount) {
			t.Errorf("offer %s: error carries %s / %s", offer, mismatch.Offer, mismatch.CounterOffer)
		}
		if state == nil || state.Owner != "owner" {
			t.Fatalf("record changed after mismatch")
		}
	}

	tr, err := apply(t, m, &state, 99_999, info(t, "owner", amount), domain.ExecuteCommand{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	msgs := tr.Response.Messages
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ToAddress != "creator" || !msgs[0].Amount.Equal(amount) {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].ToAddress != "owner" || !msgs[1].Amount.Equal(collateral) {
		t.Errorf("second message = %+v", msgs[1])
	}
	if v, _ := tr.Response.Attr("action"); v != "execute" {
		t.Errorf("action = %q", v)
	}

	if _, err := domain.QueryConfig(state); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected not found after execute, got %v", err)
	}
}

func TestExecuteOrderIndependent(t *testing.T) {
	m := domain.NewMachine(stubValidator{})
	var state *domain.Option
	_, err := apply(t, m, &state, 1, info(t, "creator", domain.NewCoins(5, "ATOM")), domain.InstantiateCommand{
		CounterOffer: domain.Coins{domain.NewCoin(40, "ETH"), domain.NewCoin(3, "BTC")},
		Expires:      10,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	offer := domain.Coins{domain.NewCoin(3, "BTC"), domain.NewCoin(40, "ETH")}
	if _, err := apply(t, m, &state, 2, info(t, "creator", offer), domain.ExecuteCommand{}); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestBurn(t *testing.T) {
	counterOffer := domain.NewCoins(40, "ETH")
	collateral := domain.NewCoins(1, "BTC")

	m, state := setup(t)

	// 未过期不能回收
	_, err := apply(t, m, &state, 99_999, info(t, "anyone", nil), domain.BurnCommand{})
	var notExpired *domain.OptionNotExpiredError
	if !errors.As(err, &notExpired) || notExpired.Expires != 100_000 {
		t.Fatalf("expected OptionNotExpired{100000}, got %v", err)
	}

	// 过期后附带资金也不行
	_, err = apply(t, m, &state, 200_000, info(t, "anyone", counterOffer), domain.BurnCommand{})
	if !errors.Is(err, domain.ErrFundsSentWithBurn) {
		t.Fatalf("expected ErrFundsSentWithBurn, got %v", err)
	}
	if state == nil {
		t.Fatalf("record removed after failed burn")
	}

	tr, err := apply(t, m, &state, 200_000, info(t, "anyone", nil), domain.BurnCommand{})
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	msgs := tr.Response.Messages
	if len(msgs) != 1 || msgs[0].ToAddress != "creator" || !msgs[0].Amount.Equal(collateral) {
		t.Fatalf("messages = %+v", msgs)
	}
	if v, _ := tr.Response.Attr("action"); v != "burn" {
		t.Errorf("action = %q", v)
	}
	if _, err := domain.QueryConfig(state); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Fatalf("expected not found after burn, got %v", err)
	}
}

func TestBurnAtExpiryHeight(t *testing.T) {
	m, state := setup(t)
	if _, err := apply(t, m, &state, 100_000, info(t, "creator", nil), domain.BurnCommand{}); err != nil {
		t.Fatalf("burn at expiry height: %v", err)
	}
}

func TestCommandsWithoutRecord(t *testing.T) {
	m := domain.NewMachine(stubValidator{})
	cmds := []domain.Command{
		domain.TransferCommand{Recipient: "someone"},
		domain.ExecuteCommand{},
		domain.BurnCommand{},
	}
	for _, cmd := range cmds {
		_, err := m.Handle(context.Background(), nil, domain.Env{Height: 1}, info(t, "creator", nil), cmd)
		if !errors.Is(err, domain.ErrOptionNotFound) {
			t.Errorf("%s: expected ErrOptionNotFound, got %v", cmd.Action(), err)
		}
	}
	if _, err := domain.QueryConfig(nil); !errors.Is(err, domain.ErrOptionNotFound) {
		t.Errorf("query: expected ErrOptionNotFound, got %v", err)
	}
}

func TestHandleDoesNotMutateInput(t *testing.T) {
	m, state := setup(t)
	snapshot := state.Clone()
	if _, err := m.Handle(context.Background(), state, domain.Env{Height: 1}, info(t, "creator", nil), domain.TransferCommand{Recipient: "someone"}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if state.Owner != snapshot.Owner {
		t.Fatalf("input record mutated: owner %s", state.Owner)
	}
}

func TestErrorCodes(t *testing.T) {
	cases := map[string]error{
		"option_expired":         &domain.OptionExpiredError{Expired: 1},
		"option_not_expired":     &domain.OptionNotExpiredError{Expires: 1},
		"counter_offer_mismatch": &domain.CounterOfferMismatchError{},
		"unauthorized":           domain.ErrUnauthorized,
		"funds_sent_with_burn":   domain.ErrFundsSentWithBurn,
		"not_found":              domain.ErrOptionNotFound,
		"invalid_address":        &domain.AddressError{Raw: "X", Reason: "upper"},
		"invalid_coins":          &domain.CoinsError{Reason: "negative amount"},
		"internal":               errors.New("boom"),
	}
	for want, err := range cases {
		if got := domain.Code(err); got != want {
			t.Errorf("Code(%v) = %q, want %q", err, got, want)
		}
	}
}
