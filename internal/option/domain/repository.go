package domain

import (
	"context"
	"time"
)

// Store 单例期权记录的存取。Load 在记录不存在时返回 ErrOptionNotFound。
type Store interface {
	Load(ctx context.Context) (*Option, error)
	Save(ctx context.Context, option *Option) error
	Remove(ctx context.Context) error
}

// OutboxMessage 与状态变更同事务写入、稍后投递到消息队列的消息
type OutboxMessage struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry 每次成功调用的审计记录
type HistoryEntry struct {
	Action     string      `json:"action"`
	Sender     Addr        `json:"sender"`
	Height     uint64      `json:"height"`
	Messages   []BankSend  `json:"messages"`
	Attributes []Attribute `json:"attributes"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Terminal 该记录是否终结了期权
func (h HistoryEntry) Terminal() bool {
	return h.Action == ActionExecute || h.Action == ActionBurn
}

// UnitOfWork 单次调用内的原子写入单元
type UnitOfWork interface {
	Store
	Enqueue(ctx context.Context, msgs ...OutboxMessage) error
	Record(ctx context.Context, entry HistoryEntry) error
}

// OptionRepository 期权仓储接口
type OptionRepository interface {
	Store
	// Atomically 在一个事务中执行 fn，fn 返回错误时所有写入被丢弃
	Atomically(ctx context.Context, fn func(uow UnitOfWork) error) error
	// History 按时间倒序返回最近的审计记录
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// OutboxStore 发件箱读取端，供投递器使用
type OutboxStore interface {
	Pending(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkSent(ctx context.Context, ids ...string) error
	PurgeSent(ctx context.Context, before time.Time) (int64, error)
}
