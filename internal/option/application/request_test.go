package application

import (
	"errors"
	"testing"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

func TestDecodeCommand(t *testing.T) {
	cmd, funds, err := DecodeCommand("instantiate", []byte(`{"funds":[{"denom":"BTC","amount":"1"}],"counter_offer":[{"denom":"ETH","amount":"40"}],"expires":100000}`))
	if err != nil {
		t.Fatal(err)
	}
	inst, ok := cmd.(domain.InstantiateCommand)
	if !ok || inst.Expires != 100_000 || !inst.CounterOffer.Equal(domain.NewCoins(40, "ETH")) {
		t.Errorf("cmd = %#v", cmd)
	}
	if !funds.Equal(domain.NewCoins(1, "BTC")) {
		t.Errorf("funds = %s", funds)
	}

	cmd, _, err = DecodeCommand("transfer", []byte(`{"recipient":"owner"}`))
	if err != nil || cmd.(domain.TransferCommand).Recipient != "owner" {
		t.Errorf("transfer: %#v %v", cmd, err)
	}
	cmd, funds, err = DecodeCommand("burn", []byte(`{}`))
	if _, ok := cmd.(domain.BurnCommand); !ok || err != nil || !funds.IsEmpty() {
		t.Errorf("burn: %#v %v %v", cmd, funds, err)
	}
	if _, _, err := DecodeCommand("steal", []byte(`{}`)); !errors.Is(err, domain.ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if _, _, err := DecodeCommand("execute", []byte(`{"funds":[{"denom":"","amount":"1"}]}`)); !errors.Is(err, domain.ErrInvalidCoins) {
		t.Errorf("expected ErrInvalidCoins, got %v", err)
	}
}

func TestDecodeCommandMalformedBody(t *testing.T) {
	tests := []struct {
		name   string
		action string
		body   string
	}{
		{"expires overflows uint64", "instantiate", `{"counter_offer":[{"denom":"ETH","amount":"40"}],"expires":99999999999999999999999}`},
		{"fractional expires", "instantiate", `{"expires":1.5}`},
		{"funds not a list on transfer", "transfer", `{"recipient":"owner","funds":"x"}`},
		{"funds not a list on execute", "execute", `{"funds":{"denom":"ETH"}}`},
		{"not json", "burn", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCommand(tt.action, []byte(tt.body))
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if code := domain.Code(err); code != "invalid_request" {
				t.Errorf("code = %s, want invalid_request", code)
			}
		})
	}
}
