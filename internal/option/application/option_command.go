package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// eventKey 事件共用一个分区键，消费端按写入顺序看到全部事件
const eventKey = "option"

// Invocation 调用者身份（未校验）与随调用附带的资金
type Invocation struct {
	Sender string
	Funds  domain.Coins
}

// Instantiate 创建期权，附带资金即抵押品
func (s *OptionAppService) Instantiate(ctx context.Context, inv Invocation, counterOffer domain.Coins, expires uint64) (*ResultDTO, error) {
	return s.Invoke(ctx, inv, domain.InstantiateCommand{CounterOffer: counterOffer, Expires: expires})
}

// Transfer 转让持有权
func (s *OptionAppService) Transfer(ctx context.Context, inv Invocation, recipient string) (*ResultDTO, error) {
	return s.Invoke(ctx, inv, domain.TransferCommand{Recipient: recipient})
}

// Execute 行权
func (s *OptionAppService) Execute(ctx context.Context, inv Invocation) (*ResultDTO, error) {
	return s.Invoke(ctx, inv, domain.ExecuteCommand{})
}

// Burn 过期回收
func (s *OptionAppService) Burn(ctx context.Context, inv Invocation) (*ResultDTO, error) {
	return s.Invoke(ctx, inv, domain.BurnCommand{})
}

// Invoke 执行一条命令。失败时记录、发件箱与审计均不变。
func (s *OptionAppService) Invoke(ctx context.Context, inv Invocation, cmd domain.Command) (result *ResultDTO, err error) {
	start := time.Now()
	action := "unknown"
	if cmd != nil {
		action = cmd.Action()
	}
	defer func() {
		s.metrics.RecordInvocation(action, domain.Code(err), time.Since(start))
	}()

	if cmd == nil {
		return nil, domain.ErrUnknownCommand
	}
	info, err := s.messageInfo(inv)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire invocation lock: %w", err)
		}
		defer unlock()
	}

	height, err := s.clock.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block height: %w", err)
	}
	env := domain.Env{Height: height}
	occurredAt := s.now().UTC()

	var transition *domain.Transition
	err = s.repo.Atomically(ctx, func(uow domain.UnitOfWork) error {
		current, err := loadCurrent(ctx, uow)
		if err != nil {
			return err
		}
		t, err := s.machine.Handle(ctx, current, env, info, cmd)
		if err != nil {
			return err
		}

		switch {
		case t.Deleted:
			if err := uow.Remove(ctx); err != nil {
				return fmt.Errorf("remove option: %w", err)
			}
		case t.Next != nil:
			if err := uow.Save(ctx, t.Next); err != nil {
				return fmt.Errorf("save option: %w", err)
			}
		}

		msgs, err := s.outboxMessages(action, info.Sender, height, t.Response, occurredAt)
		if err != nil {
			return err
		}
		if err := uow.Enqueue(ctx, msgs...); err != nil {
			return fmt.Errorf("enqueue outbox: %w", err)
		}
		if err := uow.Record(ctx, domain.HistoryEntry{
			Action:     action,
			Sender:     info.Sender,
			Height:     height,
			Messages:   t.Response.Messages,
			Attributes: t.Response.Attributes,
			OccurredAt: occurredAt,
		}); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		transition = t
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "option command rejected",
			"action", action, "sender", info.Sender, "height", height, "code", domain.Code(err), "error", err)
		return nil, err
	}

	s.metrics.RecordTransfers(len(transition.Response.Messages))
	s.metrics.SetActive(!transition.Deleted)
	s.logger.InfoContext(ctx, "option command applied",
		"action", action, "sender", info.Sender, "height", height, "transfers", len(transition.Response.Messages))

	return toResultDTO(action, height, true, transition.Response), nil
}

// Simulate 对当前记录试运行命令，不加锁也不提交
func (s *OptionAppService) Simulate(ctx context.Context, inv Invocation, cmd domain.Command) (*ResultDTO, error) {
	if cmd == nil {
		return nil, domain.ErrUnknownCommand
	}
	info, err := s.messageInfo(inv)
	if err != nil {
		return nil, err
	}
	height, err := s.clock.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block height: %w", err)
	}
	current, err := loadCurrent(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	t, err := s.machine.Handle(ctx, current, domain.Env{Height: height}, info, cmd)
	if err != nil {
		return nil, err
	}
	return toResultDTO(cmd.Action(), height, false, t.Response), nil
}

func (s *OptionAppService) messageInfo(inv Invocation) (domain.MessageInfo, error) {
	sender, err := s.validator.Validate(inv.Sender)
	if err != nil {
		return domain.MessageInfo{}, err
	}
	return domain.NewMessageInfo(sender, inv.Funds)
}

func loadCurrent(ctx context.Context, store domain.Store) (*domain.Option, error) {
	current, err := store.Load(ctx)
	if errors.Is(err, domain.ErrOptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load option: %w", err)
	}
	return current, nil
}

// outboxMessages 每条转账指令一条消息（按收款方分区），外加一条事件
func (s *OptionAppService) outboxMessages(action string, sender domain.Addr, height uint64, resp domain.Response, at time.Time) ([]domain.OutboxMessage, error) {
	msgs := make([]domain.OutboxMessage, 0, len(resp.Messages)+1)
	for _, send := range resp.Messages {
		payload, err := json.Marshal(TransferInstruction{
			ToAddress: send.ToAddress.String(),
			Amount:    toCoinDTOs(send.Amount),
			Action:    action,
			Height:    height,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal transfer instruction: %w", err)
		}
		msgs = append(msgs, domain.OutboxMessage{
			ID:        uuid.NewString(),
			Topic:     s.topics.Transfer,
			Key:       send.ToAddress.String(),
			Payload:   payload,
			CreatedAt: at,
		})
	}

	payload, err := json.Marshal(OptionEvent{
		Action:     action,
		Sender:     sender.String(),
		Height:     height,
		Attributes: toAttributeDTOs(resp.Attributes),
		OccurredAt: at,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal option event: %w", err)
	}
	msgs = append(msgs, domain.OutboxMessage{
		ID:        uuid.NewString(),
		Topic:     s.topics.Event,
		Key:       eventKey,
		Payload:   payload,
		CreatedAt: at,
	})
	return msgs, nil
}
