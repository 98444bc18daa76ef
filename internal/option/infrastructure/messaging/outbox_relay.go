// Package messaging 把发件箱中的转账指令与事件投递到 Kafka
package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
	"github.com/wyfcoding/optionescrow/pkg/utils"
)

// Publisher 消息发送端，pkg/mq.KafkaProducer 实现了它
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// PublishRecorder 投递指标
type PublishRecorder interface {
	RecordPublished(topic string)
	RecordPublishFailure(topic string)
}

type noopPublishRecorder struct{}

func (noopPublishRecorder) RecordPublished(string)      {}
func (noopPublishRecorder) RecordPublishFailure(string) {}

// RelayConfig 投递参数
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Retention    time.Duration
	MaxAttempts  int
}

// OutboxRelay 轮询发件箱并按写入顺序投递
type OutboxRelay struct {
	store     domain.OutboxStore
	publisher Publisher
	metrics   PublishRecorder
	cfg       RelayConfig
	logger    *slog.Logger
}

func NewOutboxRelay(store domain.OutboxStore, publisher Publisher, cfg RelayConfig, metrics PublishRecorder, logger *slog.Logger) *OutboxRelay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if metrics == nil {
		metrics = noopPublishRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With("module", "outbox_relay"),
	}
}

// Run 阻塞运行直到 ctx 结束
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.InfoContext(ctx, "outbox relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.ProcessOutboxMessages(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "outbox relay batch failed", "error", err)
			}
			if r.cfg.Retention > 0 {
				if _, err := r.CleanupProcessedMessages(ctx, time.Now().Add(-r.cfg.Retention)); err != nil && ctx.Err() == nil {
					r.logger.ErrorContext(ctx, "outbox cleanup failed", "error", err)
				}
			}
		}
	}
}

// ProcessOutboxMessages 投递一批待发消息，返回成功条数。
// 某条消息重试耗尽后停止本批，后面的消息留到下一轮，保证顺序。
func (r *OutboxRelay) ProcessOutboxMessages(ctx context.Context) (int, error) {
	pending, err := r.store.Pending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range pending {
		err := utils.RetryWithBackoff(ctx, r.cfg.MaxAttempts, 100*time.Millisecond, 2*time.Second, func() error {
			return r.publisher.Publish(ctx, msg.Topic, msg.Key, msg.Payload)
		})
		if err != nil {
			r.metrics.RecordPublishFailure(msg.Topic)
			return sent, err
		}
		if err := r.store.MarkSent(ctx, msg.ID); err != nil {
			return sent, err
		}
		r.metrics.RecordPublished(msg.Topic)
		sent++
	}
	if sent > 0 {
		r.logger.DebugContext(ctx, "outbox messages published", "count", sent)
	}
	return sent, nil
}

// CleanupProcessedMessages 清理 before 之前已投递的消息
func (r *OutboxRelay) CleanupProcessedMessages(ctx context.Context, before time.Time) (int64, error) {
	return r.store.PurgeSent(ctx, before)
}
