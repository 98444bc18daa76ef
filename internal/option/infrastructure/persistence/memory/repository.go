// Package memory 提供进程内的期权仓储，单元测试与 memory 驱动使用。
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

type outboxEntry struct {
	msg  domain.OutboxMessage
	sent time.Time
}

// OptionRepo 单例槽位 + 发件箱 + 审计记录
type OptionRepo struct {
	mu      sync.Mutex
	option  *domain.Option
	outbox  []outboxEntry
	history []domain.HistoryEntry
}

func NewOptionRepo() *OptionRepo {
	return &OptionRepo{}
}

func (r *OptionRepo) Load(ctx context.Context) (*domain.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.option == nil {
		return nil, domain.ErrOptionNotFound
	}
	return r.option.Clone(), nil
}

func (r *OptionRepo) Save(ctx context.Context, option *domain.Option) error {
	r.mu.Lock()
	r.option = option.Clone()
	r.mu.Unlock()
	return nil
}

func (r *OptionRepo) Remove(ctx context.Context) error {
	r.mu.Lock()
	r.option = nil
	r.mu.Unlock()
	return nil
}

// Atomically 在缓冲的工作单元上执行 fn，成功后一次性提交
func (r *OptionRepo) Atomically(ctx context.Context, fn func(uow domain.UnitOfWork) error) error {
	current, err := r.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrOptionNotFound) {
		return err
	}
	uow := &unitOfWork{option: current}
	if err := fn(uow); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if uow.dirty {
		r.option = uow.option.Clone()
	}
	for _, m := range uow.outbox {
		r.outbox = append(r.outbox, outboxEntry{msg: m})
	}
	r.history = append(r.history, uow.history...)
	return nil
}

func (r *OptionRepo) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.HistoryEntry, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.history[i])
	}
	return out, nil
}

func (r *OptionRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OutboxMessage
	for _, e := range r.outbox {
		if !e.sent.IsZero() {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, e.msg)
	}
	return out, nil
}

func (r *OptionRepo) MarkSent(ctx context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	now := time.Now()
	for i := range r.outbox {
		if _, ok := want[r.outbox[i].msg.ID]; ok {
			r.outbox[i].sent = now
		}
	}
	return nil
}

func (r *OptionRepo) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.outbox[:0]
	var purged int64
	for _, e := range r.outbox {
		if !e.sent.IsZero() && e.sent.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.outbox = kept
	return purged, nil
}

type unitOfWork struct {
	option  *domain.Option
	dirty   bool
	outbox  []domain.OutboxMessage
	history []domain.HistoryEntry
}

func (u *unitOfWork) Load(ctx context.Context) (*domain.Option, error) {
	if u.option == nil {
		return nil, domain.ErrOptionNotFound
	}
	return u.option.Clone(), nil
}

func (u *unitOfWork) Save(ctx context.Context, option *domain.Option) error {
	u.option = option.Clone()
	u.dirty = true
	return nil
}

func (u *unitOfWork) Remove(ctx context.Context) error {
	u.option = nil
	u.dirty = true
	return nil
}

func (u *unitOfWork) Enqueue(ctx context.Context, msgs ...domain.OutboxMessage) error {
	u.outbox = append(u.outbox, msgs...)
	return nil
}

func (u *unitOfWork) Record(ctx context.Context, entry domain.HistoryEntry) error {
	u.history = append(u.history, entry)
	return nil
}

var (
	_ domain.OptionRepository = (*OptionRepo)(nil)
	_ domain.OutboxStore      = (*OptionRepo)(nil)
)
