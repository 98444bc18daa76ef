package main

import (
	"testing"

	"github.com/wyfcoding/optionescrow/pkg/mq"
)

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		isTransfer bool
		want       string
		wantErr    bool
	}{
		{
			name:       "transfer instruction",
			value:      `{"to_address":"creator","amount":[{"denom":"ETH","amount":"40"}],"action":"execute","height":99999}`,
			isTransfer: true,
			want:       "execute\theight=99999\t40ETH -> creator",
		},
		{
			name:  "event",
			value: `{"action":"transfer","sender":"creator","height":12,"attributes":[{"key":"action","value":"transfer"},{"key":"owner","value":"owner"}]}`,
			want:  "transfer\theight=12\tsender=creator\taction=transfer owner=owner",
		},
		{name: "garbage", value: `not json`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatMessage(&mq.Message{Value: []byte(tt.value)}, tt.isTransfer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildRequest(t *testing.T) {
	method, req, err := buildRequest([]string{"simulate", "execute"}, []string{"40ETH"}, nil, 0, "", 0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if method != "Simulate" || req["command"] != "execute" {
		t.Errorf("method=%s req=%v", method, req)
	}
	if _, _, err := buildRequest([]string{"execute"}, []string{"ETH"}, nil, 0, "", 0); err == nil {
		t.Error("expected coin parse error")
	}
}
