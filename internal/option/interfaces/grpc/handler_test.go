package grpc

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/wyfcoding/optionescrow/internal/option/application"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/chain"
	"github.com/wyfcoding/optionescrow/internal/option/infrastructure/persistence/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newTestClient(t *testing.T) (*OptionClient, *chain.FixedClock) {
	t.Helper()
	clock := chain.NewFixedClock(10)
	svc := application.NewOptionAppService(memory.NewOptionRepo(), chain.NewAddressValidator(chain.AddressConfig{}), clock, nil)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterOptionServiceServer(server, NewHandler(svc, nil))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewOptionClient(conn), clock
}

func coins(denom, amount string) []interface{} {
	return []interface{}{map[string]interface{}{"denom": denom, "amount": amount}}
}

func TestGRPCLifecycle(t *testing.T) {
	client, clock := newTestClient(t)
	ctx := context.Background()

	_, err := client.Call(ctx, MethodConfig, "", map[string]interface{}{})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("config before instantiate: %v", err)
	}

	_, err = client.Call(ctx, MethodInstantiate, "creator", map[string]interface{}{
		"funds":         coins("BTC", "1"),
		"counter_offer": coins("ETH", "40"),
		"expires":       100000,
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	cfg, err := client.Call(ctx, MethodConfig, "", map[string]interface{}{})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg["owner"] != "creator" || cfg["expires"] != float64(100000) {
		t.Errorf("config = %+v", cfg)
	}

	_, err = client.Call(ctx, MethodExecute, "someone", map[string]interface{}{"funds": coins("ETH", "40")})
	if status.Code(err) != codes.PermissionDenied || !strings.HasPrefix(status.Convert(err).Message(), "unauthorized") {
		t.Fatalf("execute by stranger: %v", err)
	}

	sim, err := client.Call(ctx, MethodSimulate, "creator", map[string]interface{}{"command": "execute", "funds": coins("ETH", "40")})
	if err != nil || sim["committed"] != false {
		t.Fatalf("simulate: %+v %v", sim, err)
	}

	clock.Set(100_000)
	_, err = client.Call(ctx, MethodExecute, "creator", map[string]interface{}{"funds": coins("ETH", "40")})
	if status.Code(err) != codes.FailedPrecondition || !strings.HasPrefix(status.Convert(err).Message(), "option_expired") {
		t.Fatalf("execute expired: %v", err)
	}

	res, err := client.Call(ctx, MethodBurn, "anyone", map[string]interface{}{})
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if msgs := res["messages"].([]interface{}); len(msgs) != 1 {
		t.Errorf("messages = %v", msgs)
	}

	st, err := client.Call(ctx, MethodStatus, "", map[string]interface{}{})
	if err != nil || st["state"] != "TERMINATED" {
		t.Fatalf("status: %+v %v", st, err)
	}
	hist, err := client.Call(ctx, MethodHistory, "", map[string]interface{}{"limit": 10})
	if err != nil || len(hist["entries"].([]interface{})) != 2 {
		t.Fatalf("history: %+v %v", hist, err)
	}
}

func TestGRPCRequiresSender(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.Call(context.Background(), MethodBurn, "", map[string]interface{}{})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %v", status.Code(err))
	}
}

func TestGRPCUnknownSimulateCommand(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.Call(context.Background(), MethodSimulate, "creator", map[string]interface{}{"command": "steal"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %v", status.Code(err))
	}
}

func TestGRPCRejectsInexactExpires(t *testing.T) {
	client, _ := newTestClient(t)
	tests := []struct {
		name    string
		expires interface{}
	}{
		{"beyond float precision", int64(1) << 60},
		{"fractional", 100000.5},
		{"negative", -1},
		{"not a number", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Call(context.Background(), MethodInstantiate, "creator", map[string]interface{}{
				"counter_offer": coins("ETH", "40"),
				"expires":       tt.expires,
			})
			if status.Code(err) != codes.InvalidArgument || !strings.HasPrefix(status.Convert(err).Message(), "invalid_request") {
				t.Fatalf("got %v", err)
			}
		})
	}
}
