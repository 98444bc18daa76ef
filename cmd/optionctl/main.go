// optionctl 期权服务命令行客户端
// 通过 gRPC 调用 OptionService，或从 Kafka 订阅期权事件
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/wyfcoding/optionescrow/internal/option/application"
	grpchandler "github.com/wyfcoding/optionescrow/internal/option/interfaces/grpc"
	"github.com/wyfcoding/optionescrow/pkg/config"
	"github.com/wyfcoding/optionescrow/pkg/grpcclient"
	"github.com/wyfcoding/optionescrow/pkg/mq"
)

const usage = `usage: optionctl [flags] <command> [args]

commands:
  instantiate --funds 1BTC --counter-offer 40ETH --expires 100000
  transfer    --recipient <addr>
  execute     --funds 40ETH
  burn
  simulate    <instantiate|transfer|execute|burn> [command flags]
  config
  status
  history     [--limit 50]
  tail-events

flags:
`

func main() {
	flags := pflag.NewFlagSet("optionctl", pflag.ExitOnError)
	target := flags.String("target", config.GetEnv("OPTION_GRPC_TARGET", "localhost:50051"), "gRPC address of OptionService")
	sender := flags.String("sender", config.GetEnv("OPTION_SENDER", ""), "caller address sent as x-sender")
	funds := flags.StringSlice("funds", nil, "attached funds, e.g. 40ETH")
	counterOffer := flags.StringSlice("counter-offer", nil, "counter offer coins, e.g. 40ETH")
	expires := flags.Uint64("expires", 0, "expiry block height")
	recipient := flags.String("recipient", "", "new owner address")
	limit := flags.Int("limit", 50, "history entries to return")
	configPath := flags.String("config", "configs/option/config.toml", "config file used by tail-events")
	timeout := flags.Duration("timeout", 10*time.Second, "request timeout")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	if args[0] == "tail-events" {
		if err := tailEvents(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "tail-events: %v\n", err)
			os.Exit(1)
		}
		return
	}

	method, req, err := buildRequest(args, *funds, *counterOffer, *expires, *recipient, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flags.Usage()
		os.Exit(2)
	}

	conn, err := grpcclient.NewClient(grpcclient.ClientConfig{
		Target:         *target,
		ConnTimeout:    5,
		RequestTimeout: int(timeout.Seconds()),
		MaxRetries:     3,
		RetryDelay:     200,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *target, err)
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := grpchandler.NewOptionClient(conn).Call(ctx, method, *sender, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", strings.ToLower(method), err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
}

// buildRequest 把子命令和参数转换为 gRPC 方法与请求体
func buildRequest(args []string, funds, counterOffer []string, expires uint64, recipient string, limit int) (string, map[string]interface{}, error) {
	req := map[string]interface{}{}
	command := args[0]
	simulate := command == "simulate"
	if simulate {
		if len(args) < 2 {
			return "", nil, errors.New("simulate needs a command")
		}
		command = args[1]
		req["command"] = command
	}

	var method string
	switch command {
	case "instantiate":
		method = grpchandler.MethodInstantiate
		offer, err := parseCoins(counterOffer)
		if err != nil {
			return "", nil, err
		}
		req["counter_offer"] = offer
		req["expires"] = expires
	case "transfer":
		method = grpchandler.MethodTransfer
		req["recipient"] = recipient
	case "execute":
		method = grpchandler.MethodExecute
	case "burn":
		method = grpchandler.MethodBurn
	case "config":
		return grpchandler.MethodConfig, req, nil
	case "status":
		return grpchandler.MethodStatus, req, nil
	case "history":
		req["limit"] = limit
		return grpchandler.MethodHistory, req, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", command)
	}

	if len(funds) > 0 {
		attached, err := parseCoins(funds)
		if err != nil {
			return "", nil, err
		}
		req["funds"] = attached
	}
	if simulate {
		method = grpchandler.MethodSimulate
	}
	return method, req, nil
}

// parseCoins 解析 40ETH 形式的币种参数
func parseCoins(raw []string) ([]interface{}, error) {
	out := make([]interface{}, 0, len(raw))
	for _, s := range raw {
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == 0 || i == len(s) {
			return nil, fmt.Errorf("invalid coin %q, expected <amount><denom>", s)
		}
		out = append(out, map[string]interface{}{"amount": s[:i], "denom": s[i:]})
	}
	return out, nil
}

// tailEvents 打印期权事件与转账指令，直到收到中断信号
func tailEvents(configPath string) error {
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}
	if brokers := config.GetEnv("OPTION_KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 2)
	for _, topic := range []string{cfg.Kafka.EventTopic, cfg.Kafka.TransferTopic} {
		consumer, err := mq.NewConsumer(mq.KafkaConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.Kafka.GroupID,
			SessionTimeout: cfg.Kafka.SessionTimeout,
		}, topic)
		if err != nil {
			return err
		}
		defer consumer.Close()

		isTransfer := topic == cfg.Kafka.TransferTopic
		go func(consumer *mq.KafkaConsumer) {
			for {
				msg, err := consumer.ReadMessage(ctx)
				if err != nil {
					errc <- err
					return
				}
				line, err := formatMessage(msg, isTransfer)
				if err != nil {
					fmt.Fprintf(os.Stderr, "skip %s@%d: %v\n", msg.Topic, msg.Offset, err)
					continue
				}
				fmt.Println(line)
			}
		}(consumer)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// formatMessage 把转账指令或期权事件解码为一行可读文本
func formatMessage(msg *mq.Message, isTransfer bool) (string, error) {
	if isTransfer {
		var ti application.TransferInstruction
		if err := msg.UnmarshalPayload(&ti); err != nil {
			return "", err
		}
		amounts := make([]string, 0, len(ti.Amount))
		for _, c := range ti.Amount {
			amounts = append(amounts, c.Amount+c.Denom)
		}
		return fmt.Sprintf("%s\theight=%d\t%s -> %s", ti.Action, ti.Height, strings.Join(amounts, ","), ti.ToAddress), nil
	}

	var ev application.OptionEvent
	if err := msg.UnmarshalPayload(&ev); err != nil {
		return "", err
	}
	attrs := make([]string, 0, len(ev.Attributes))
	for _, a := range ev.Attributes {
		attrs = append(attrs, a.Key+"="+a.Value)
	}
	return fmt.Sprintf("%s\theight=%d\tsender=%s\t%s", ev.Action, ev.Height, ev.Sender, strings.Join(attrs, " ")), nil
}
