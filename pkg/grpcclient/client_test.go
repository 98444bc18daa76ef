package grpcclient

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryClientInterceptorRetries(t *testing.T) {
	tests := []struct {
		name      string
		code      codes.Code
		wantCalls int
	}{
		{"unavailable is retried", codes.Unavailable, 3},
		{"failed precondition is not retried", codes.FailedPrecondition, 1},
		{"deadline is not retried", codes.DeadlineExceeded, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			interceptor := unaryClientInterceptor(ClientConfig{MaxRetries: 2, RetryDelay: 1})
			err := interceptor(context.Background(), "/option.v1.OptionService/Execute", nil, nil, nil,
				func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
					calls++
					return status.Error(tt.code, "fail")
				})
			if status.Code(err) != tt.code {
				t.Errorf("code = %v", status.Code(err))
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestNewClientLazy(t *testing.T) {
	conn, err := NewClient(ClientConfig{Target: "localhost:0"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_ = conn.Close()
}
