package domain

import (
	"context"
	"strconv"

	"github.com/wyfcoding/pkg/fsm"
)

// 期权生命周期状态
const (
	StateUninitialized fsm.State = "UNINITIALIZED"
	StateActive        fsm.State = "ACTIVE"
	StateTerminated    fsm.State = "TERMINATED"
)

// 生命周期事件与命令一一对应
const (
	eventInstantiate fsm.Event = "INSTANTIATE"
	eventTransfer    fsm.Event = "TRANSFER"
	eventExecute     fsm.Event = "EXECUTE"
	eventBurn        fsm.Event = "BURN"
)

// Machine 期权状态机。纯函数：不做 IO，不修改入参。
type Machine struct {
	validator AddressValidator
}

// NewMachine 创建状态机
func NewMachine(validator AddressValidator) *Machine {
	return &Machine{validator: validator}
}

func newLifecycle(current *Option) *fsm.Machine {
	initial := StateUninitialized
	if current != nil {
		initial = StateActive
	}
	m := fsm.NewMachine(initial)
	m.AddTransition(StateUninitialized, eventInstantiate, StateActive)
	m.AddTransition(StateActive, eventTransfer, StateActive)
	m.AddTransition(StateActive, eventExecute, StateTerminated)
	m.AddTransition(StateActive, eventBurn, StateTerminated)
	return m
}

// Handle 对当前记录（nil 表示不存在）执行命令。
// 任一前置条件失败都返回错误且不产生任何效果。
func (m *Machine) Handle(ctx context.Context, current *Option, env Env, info MessageInfo, cmd Command) (*Transition, error) {
	var event fsm.Event
	switch cmd.(type) {
	case InstantiateCommand:
		event = eventInstantiate
	case TransferCommand:
		event = eventTransfer
	case ExecuteCommand:
		event = eventExecute
	case BurnCommand:
		event = eventBurn
	default:
		return nil, ErrUnknownCommand
	}

	if err := newLifecycle(current).Trigger(ctx, event); err != nil {
		if current == nil {
			return nil, ErrOptionNotFound
		}
		return nil, ErrAlreadyInstantiated
	}

	switch c := cmd.(type) {
	case InstantiateCommand:
		return m.instantiate(env, info, c)
	case TransferCommand:
		return m.transfer(current.Clone(), info, c)
	case ExecuteCommand:
		return m.execute(current.Clone(), env, info)
	case BurnCommand:
		return m.burn(current.Clone(), env, info)
	}
	return nil, ErrUnknownCommand
}

func (m *Machine) instantiate(env Env, info MessageInfo, cmd InstantiateCommand) (*Transition, error) {
	if cmd.Expires <= env.Height {
		return nil, &OptionExpiredError{Expired: cmd.Expires}
	}
	counterOffer, err := NormalizeCoins(cmd.CounterOffer)
	if err != nil {
		return nil, err
	}

	state := &Option{
		Creator:      info.Sender,
		Owner:        info.Sender,
		Collateral:   info.Funds.Clone(),
		CounterOffer: counterOffer,
		Expires:      cmd.Expires,
	}

	t := &Transition{Next: state}
	t.Response.addAttribute("action", ActionInstantiate)
	t.Response.addAttribute("creator", state.Creator.String())
	t.Response.addAttribute("expires", strconv.FormatUint(state.Expires, 10))
	return t, nil
}

func (m *Machine) transfer(state *Option, info MessageInfo, cmd TransferCommand) (*Transition, error) {
	if info.Sender != state.Owner {
		return nil, ErrUnauthorized
	}

	owner, err := m.validator.Validate(cmd.Recipient)
	if err != nil {
		return nil, err
	}
	state.Owner = owner

	t := &Transition{Next: state}
	t.Response.addAttribute("action", ActionTransfer)
	t.Response.addAttribute("owner", owner.String())
	return t, nil
}

func (m *Machine) execute(state *Option, env Env, info MessageInfo) (*Transition, error) {
	if info.Sender != state.Owner {
		return nil, ErrUnauthorized
	}
	if state.IsExpired(env.Height) {
		return nil, &OptionExpiredError{Expired: state.Expires}
	}
	if !info.Funds.Equal(state.CounterOffer) {
		return nil, &CounterOfferMismatchError{
			Offer:        info.Funds.Clone(),
			CounterOffer: state.CounterOffer.Clone(),
		}
	}

	// 顺序可观测：先把对价付给创建者，再把抵押品交给持有人
	t := &Transition{Deleted: true}
	t.Response.addMessage(state.Creator, state.CounterOffer)
	t.Response.addMessage(state.Owner, state.Collateral)
	t.Response.addAttribute("action", ActionExecute)
	return t, nil
}

func (m *Machine) burn(state *Option, env Env, info MessageInfo) (*Transition, error) {
	if !state.IsExpired(env.Height) {
		return nil, &OptionNotExpiredError{Expires: state.Expires}
	}
	if !info.Funds.IsEmpty() {
		return nil, ErrFundsSentWithBurn
	}

	t := &Transition{Deleted: true}
	t.Response.addMessage(state.Creator, state.Collateral)
	t.Response.addAttribute("action", ActionBurn)
	return t, nil
}

// QueryConfig 返回当前记录的副本，不存在时返回 ErrOptionNotFound
func QueryConfig(current *Option) (*Option, error) {
	if current == nil {
		return nil, ErrOptionNotFound
	}
	return current.Clone(), nil
}
