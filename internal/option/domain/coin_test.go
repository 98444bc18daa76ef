package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeCoins(t *testing.T) {
	tests := []struct {
		name    string
		in      Coins
		want    Coins
		wantErr bool
	}{
		{name: "nil", in: nil, want: Coins{}},
		{name: "sorted by denom", in: Coins{NewCoin(40, "ETH"), NewCoin(1, "BTC")}, want: Coins{NewCoin(1, "BTC"), NewCoin(40, "ETH")}},
		{name: "drops zero", in: Coins{NewCoin(0, "ETH"), NewCoin(1, "BTC")}, want: Coins{NewCoin(1, "BTC")}},
		{name: "trims denom", in: Coins{{Denom: " BTC ", Amount: decimal.NewFromInt(1)}}, want: Coins{NewCoin(1, "BTC")}},
		{name: "duplicate denom", in: Coins{NewCoin(1, "ETH"), NewCoin(1, "ETH")}, wantErr: true},
		{name: "negative", in: Coins{NewCoin(-1, "ETH")}, wantErr: true},
		{name: "fractional", in: Coins{{Denom: "ETH", Amount: decimal.RequireFromString("0.5")}}, wantErr: true},
		{name: "empty denom", in: Coins{NewCoin(1, "")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCoins(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCoins) {
					t.Fatalf("expected ErrInvalidCoins, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
			for i := range got {
				if got[i].Denom != tt.want[i].Denom || !got[i].Amount.Equal(tt.want[i].Amount) {
					t.Fatalf("got %s, want %s", got, tt.want)
				}
			}
		})
	}
}

func TestCoinsEqual(t *testing.T) {
	a := Coins{NewCoin(40, "ETH"), NewCoin(1, "BTC")}
	if !a.Equal(Coins{NewCoin(1, "BTC"), NewCoin(40, "ETH")}) {
		t.Error("equality must not depend on order")
	}
	if a.Equal(Coins{NewCoin(40, "ETH")}) {
		t.Error("shortfall must not be equal")
	}
	if a.Equal(Coins{NewCoin(40, "ETH"), NewCoin(1, "BTC"), NewCoin(1, "ATOM")}) {
		t.Error("extras must not be equal")
	}
	if a.Equal(Coins{NewCoin(40, "ETH"), NewCoin(2, "BTC")}) {
		t.Error("amount difference must not be equal")
	}
	fortyPointZero := Coins{{Denom: "ETH", Amount: decimal.RequireFromString("40.0")}}
	if !NewCoins(40, "ETH").Equal(fortyPointZero) {
		t.Error("numerically equal amounts must compare equal")
	}
	if !(Coins{}).Equal(nil) {
		t.Error("empty and nil are both the empty multiset")
	}
}

func TestCoinsHelpers(t *testing.T) {
	cs := Coins{NewCoin(40, "ETH"), NewCoin(1, "BTC")}
	if cs.String() != "40ETH,1BTC" {
		t.Errorf("String() = %q", cs.String())
	}
	if cs.IsEmpty() || !(Coins{NewCoin(0, "ETH")}).IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
	clone := cs.Clone()
	clone[0].Denom = "X"
	if cs[0].Denom != "ETH" {
		t.Error("Clone must copy")
	}
}
