// Package redis 以 Redis 保存期权记录、发件箱与审计记录，写入通过 WATCH + MULTI/EXEC 保证原子
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/optionescrow/internal/option/domain"
)

// ErrConcurrentUpdate 事务提交前记录被其他实例修改
var ErrConcurrentUpdate = errors.New("option modified concurrently")

type keys struct {
	config  string
	msgs    string
	pending string
	sent    string
	history string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = "option"
	}
	return keys{
		config:  prefix + ":config",
		msgs:    prefix + ":outbox:msgs",
		pending: prefix + ":outbox:pending",
		sent:    prefix + ":outbox:sent",
		history: prefix + ":history",
	}
}

// OptionRepo Redis 期权仓储
type OptionRepo struct {
	client *redis.Client
	keys   keys
}

func NewOptionRepo(client *redis.Client, prefix string) *OptionRepo {
	return &OptionRepo{client: client, keys: newKeys(prefix)}
}

func (r *OptionRepo) Load(ctx context.Context) (*domain.Option, error) {
	return loadOption(ctx, r.client, r.keys.config)
}

func (r *OptionRepo) Save(ctx context.Context, option *domain.Option) error {
	data, err := json.Marshal(option)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.keys.config, data, 0).Err()
}

func (r *OptionRepo) Remove(ctx context.Context) error {
	return r.client.Del(ctx, r.keys.config).Err()
}

// Atomically 读取发生在 WATCH 之下，fn 的写入缓冲后在 MULTI/EXEC 中一次提交
func (r *OptionRepo) Atomically(ctx context.Context, fn func(uow domain.UnitOfWork) error) error {
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		uow := &unitOfWork{tx: tx, keys: r.keys}
		if err := fn(uow); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return uow.flush(ctx, pipe)
		})
		return err
	}, r.keys.config)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConcurrentUpdate
	}
	return err
}

func (r *OptionRepo) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := r.client.LRange(ctx, r.keys.history, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *OptionRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.LRange(ctx, r.keys.pending, 0, stop).Result()
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	values, err := r.client.HMGet(ctx, r.keys.msgs, ids...).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]domain.OutboxMessage, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("outbox message %s missing", ids[i])
		}
		var m domain.OutboxMessage
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("decode outbox message %s: %w", ids[i], err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *OptionRepo) MarkSent(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	now := float64(time.Now().UnixMilli())
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.LRem(ctx, r.keys.pending, 1, id)
			pipe.ZAdd(ctx, r.keys.sent, redis.Z{Score: now, Member: id})
		}
		return nil
	})
	return err
}

func (r *OptionRepo) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.keys.sent, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.keys.msgs, ids...)
		pipe.ZRem(ctx, r.keys.sent, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// unitOfWork 读取走 WATCH 连接，写入缓冲到提交时
type unitOfWork struct {
	tx      *redis.Tx
	keys    keys
	option  *domain.Option
	touched bool
	outbox  []domain.OutboxMessage
	history []domain.HistoryEntry
}

func (u *unitOfWork) Load(ctx context.Context) (*domain.Option, error) {
	if u.touched {
		if u.option == nil {
			return nil, domain.ErrOptionNotFound
		}
		return u.option.Clone(), nil
	}
	return loadOption(ctx, u.tx, u.keys.config)
}

func (u *unitOfWork) Save(ctx context.Context, option *domain.Option) error {
	u.option = option.Clone()
	u.touched = true
	return nil
}

func (u *unitOfWork) Remove(ctx context.Context) error {
	u.option = nil
	u.touched = true
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

func (u *unitOfWork) flush(ctx context.Context, pipe redis.Pipeliner) error {
	if u.touched {
		if u.option == nil {
			pipe.Del(ctx, u.keys.config)
		} else {
			data, err := json.Marshal(u.option)
			if err != nil {
				return err
			}
			pipe.Set(ctx, u.keys.config, data, 0)
		}
	}
	for _, m := range u.outbox {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, u.keys.msgs, m.ID, data)
		pipe.RPush(ctx, u.keys.pending, m.ID)
	}
	for _, e := range u.history {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		pipe.LPush(ctx, u.keys.history, data)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadOption(ctx context.Context, c getter, key string) (*domain.Option, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrOptionNotFound
	}
	if err != nil {
		return nil, err
	}
	var option domain.Option
	if err := json.Unmarshal(data, &option); err != nil {
		return nil, fmt.Errorf("decode option: %w", err)
	}
	return &option, nil
}

var (
	_ domain.OptionRepository = (*OptionRepo)(nil)
	_ domain.OutboxStore      = (*OptionRepo)(nil)
)
