package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/optionescrow/pkg/logger"
)

// ErrLockNotAcquired 重试耗尽仍未拿到锁
var ErrLockNotAcquired = errors.New("lock not acquired")

// RedisLocker 基于 SET NX PX 的分布式互斥锁
type RedisLocker struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	retryDelay time.Duration
}

// NewRedisLocker 创建分布式锁，ttl 为持锁上限
func NewRedisLocker(rc *RedisCache, key string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{
		client:     rc.GetClient(),
		key:        key,
		ttl:        ttl,
		retryDelay: 20 * time.Millisecond,
	}
}

// Lock 阻塞直到获得锁或 ctx 结束，返回释放函数
func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
		}
		if ok {
			return func() { l.release(token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, l.key, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}
}

// release 只删除自己持有的锁，WATCH 保证比较与删除之间无人改写
func (l *RedisLocker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, l.key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != token {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, l.key)
			return nil
		})
		return err
	}, l.key)
	if err != nil {
		logger.Warn(ctx, "Failed to release lock", "key", l.key, "error", err)
	}
}
