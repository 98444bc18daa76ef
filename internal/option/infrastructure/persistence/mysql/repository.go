package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/optionescrow/internal/option/domain"
	"github.com/wyfcoding/optionescrow/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OptionRepo 基于 GORM 的期权仓储，mysql / postgres / sqlite 通用
type OptionRepo struct {
	db *db.DB
}

func NewOptionRepo(database *db.DB) *OptionRepo {
	return &OptionRepo{db: database}
}

// Migrate 自动迁移表结构
func (r *OptionRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(Models()...)
}

func (r *OptionRepo) Load(ctx context.Context) (*domain.Option, error) {
	return loadOption(r.db.WithContext(ctx))
}

func (r *OptionRepo) Save(ctx context.Context, option *domain.Option) error {
	return saveOption(r.db.WithContext(ctx), option)
}

func (r *OptionRepo) Remove(ctx context.Context) error {
	return removeOption(r.db.WithContext(ctx))
}

func (r *OptionRepo) Atomically(ctx context.Context, fn func(uow domain.UnitOfWork) error) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(&txUnit{tx: tx})
	})
}

func (r *OptionRepo) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	var models []HistoryModel
	query := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, 0, len(models))
	for i := range models {
		entry, err := toDomainHistory(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *OptionRepo) Pending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var models []OutboxMessageModel
	query := r.db.WithContext(ctx).Where("status = ?", outboxStatusPending).Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.OutboxMessage, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, domain.OutboxMessage{
			ID:        m.ID,
			Topic:     m.Topic,
			Key:       m.MsgKey,
			Payload:   []byte(m.Payload),
			CreatedAt: m.CreatedAt,
		})
	}
	return msgs, nil
}

func (r *OptionRepo) MarkSent(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&OutboxMessageModel{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"status": outboxStatusSent, "updated_at": time.Now()}).Error
}

func (r *OptionRepo) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", outboxStatusSent, before).
		Delete(&OutboxMessageModel{})
	return res.RowsAffected, res.Error
}

// txUnit 事务内的工作单元
type txUnit struct {
	tx *gorm.DB
}

func (u *txUnit) Load(ctx context.Context) (*domain.Option, error) {
	return loadOption(u.tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}))
}

func (u *txUnit) Save(ctx context.Context, option *domain.Option) error {
	return saveOption(u.tx.WithContext(ctx), option)
}

func (u *txUnit) Remove(ctx context.Context) error {
	return removeOption(u.tx.WithContext(ctx))
}

func (u *txUnit) Enqueue(ctx context.Context, msgs ...domain.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	models := make([]OutboxMessageModel, 0, len(msgs))
	for _, m := range msgs {
		models = append(models, OutboxMessageModel{
			ID:        m.ID,
			Topic:     m.Topic,
			MsgKey:    m.Key,
			Payload:   string(m.Payload),
			Status:    outboxStatusPending,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.CreatedAt,
		})
	}
	return u.tx.WithContext(ctx).Create(&models).Error
}

func (u *txUnit) Record(ctx context.Context, entry domain.HistoryEntry) error {
	model, err := toHistoryModel(entry)
	if err != nil {
		return err
	}
	return u.tx.WithContext(ctx).Create(model).Error
}

func loadOption(tx *gorm.DB) (*domain.Option, error) {
	var model OptionConfigModel
	if err := tx.Where("id = ?", singletonID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOptionNotFound
		}
		return nil, err
	}
	return toDomainOption(&model)
}

func saveOption(tx *gorm.DB, option *domain.Option) error {
	collateral, err := json.Marshal(option.Collateral)
	if err != nil {
		return fmt.Errorf("marshal collateral: %w", err)
	}
	counterOffer, err := json.Marshal(option.CounterOffer)
	if err != nil {
		return fmt.Errorf("marshal counter offer: %w", err)
	}
	model := OptionConfigModel{
		ID:           singletonID,
		Creator:      option.Creator.String(),
		Owner:        option.Owner.String(),
		Collateral:   string(collateral),
		CounterOffer: string(counterOffer),
		Expires:      option.Expires,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"creator", "owner", "collateral", "counter_offer", "expires", "updated_at"}),
	}).Create(&model).Error
}

// removeOption 物理删除，终结后的记录不保留
func removeOption(tx *gorm.DB) error {
	return tx.Where("id = ?", singletonID).Delete(&OptionConfigModel{}).Error
}

func toDomainOption(m *OptionConfigModel) (*domain.Option, error) {
	var collateral, counterOffer domain.Coins
	if err := json.Unmarshal([]byte(m.Collateral), &collateral); err != nil {
		return nil, fmt.Errorf("unmarshal collateral: %w", err)
	}
	if err := json.Unmarshal([]byte(m.CounterOffer), &counterOffer); err != nil {
		return nil, fmt.Errorf("unmarshal counter offer: %w", err)
	}
	return &domain.Option{
		Creator:      domain.Addr(m.Creator),
		Owner:        domain.Addr(m.Owner),
		Collateral:   collateral,
		CounterOffer: counterOffer,
		Expires:      m.Expires,
	}, nil
}

func toHistoryModel(e domain.HistoryEntry) (*HistoryModel, error) {
	msgs, err := json.Marshal(e.Messages)
	if err != nil {
		return nil, err
	}
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return nil, err
	}
	return &HistoryModel{
		Action:     e.Action,
		Sender:     e.Sender.String(),
		Height:     e.Height,
		Messages:   string(msgs),
		Attributes: string(attrs),
		OccurredAt: e.OccurredAt,
	}, nil
}

func toDomainHistory(m *HistoryModel) (domain.HistoryEntry, error) {
	entry := domain.HistoryEntry{
		Action:     m.Action,
		Sender:     domain.Addr(m.Sender),
		Height:     m.Height,
		OccurredAt: m.OccurredAt,
	}
	if m.Messages != "" {
		if err := json.Unmarshal([]byte(m.Messages), &entry.Messages); err != nil {
			return entry, err
		}
	}
	if m.Attributes != "" {
		if err := json.Unmarshal([]byte(m.Attributes), &entry.Attributes); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

var (
	_ domain.OptionRepository = (*OptionRepo)(nil)
	_ domain.OutboxStore      = (*OptionRepo)(nil)
)
