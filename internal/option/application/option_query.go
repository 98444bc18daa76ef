package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// Config 返回当前期权记录
func (s *OptionAppService) Config(ctx context.Context) (*OptionDTO, error) {
	current, err := loadCurrent(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	option, err := domain.QueryConfig(current)
	if err != nil {
		return nil, err
	}
	return toOptionDTO(option), nil
}

// Status 生命周期状态。记录不存在时借助审计记录区分“从未创建”与“已终结”。
func (s *OptionAppService) Status(ctx context.Context) (*StatusDTO, error) {
	height, err := s.clock.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read block height: %w", err)
	}

	current, err := s.repo.Load(ctx)
	switch {
	case err == nil:
		return &StatusDTO{
			State:             string(domain.StateActive),
			Height:            height,
			Expired:           current.IsExpired(height),
			BlocksUntilExpiry: current.BlocksUntilExpiry(height),
			Option:            toOptionDTO(current),
		}, nil
	case !errors.Is(err, domain.ErrOptionNotFound):
		return nil, fmt.Errorf("load option: %w", err)
	}

	state := domain.StateUninitialized
	last, err := s.repo.History(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(last) > 0 && last[0].Terminal() {
		state = domain.StateTerminated
	}
	return &StatusDTO{State: string(state), Height: height}, nil
}

// History 最近的审计记录，新的在前
func (s *OptionAppService) History(ctx context.Context, limit int) ([]HistoryDTO, error) {
	entries, err := s.repo.History(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]HistoryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryDTO(e))
	}
	return out, nil
}
