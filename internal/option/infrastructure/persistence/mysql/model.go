package mysql

import (
	"time"

	"gorm.io/gorm"
)

// singletonID 期权记录固定占用的主键
const singletonID = 1

type OptionConfigModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement:false"`
	Creator      string `gorm:"column:creator;type:varchar(128);not null"`
	Owner        string `gorm:"column:owner;type:varchar(128);not null"`
	Collateral   string `gorm:"column:collateral;type:text;not null"`
	CounterOffer string `gorm:"column:counter_offer;type:text;not null"`
	Expires      uint64 `gorm:"column:expires;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (OptionConfigModel) TableName() string { return "option_config" }

// OutboxMessageModel 发件箱消息，Seq 决定投递顺序
type OutboxMessageModel struct {
	Seq       uint64    `gorm:"column:seq;primaryKey;autoIncrement"`
	ID        string    `gorm:"column:id;type:varchar(64);uniqueIndex;not null"`
	Topic     string    `gorm:"column:topic;type:varchar(128);index;not null"`
	MsgKey    string    `gorm:"column:msg_key;type:varchar(128)"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	Status    string    `gorm:"column:status;type:varchar(20);index;not null;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (OutboxMessageModel) TableName() string { return "option_outbox_messages" }

type HistoryModel struct {
	gorm.Model
	Action     string    `gorm:"column:action;type:varchar(32);index;not null"`
	Sender     string    `gorm:"column:sender;type:varchar(128);not null"`
	Height     uint64    `gorm:"column:height;index;not null"`
	Messages   string    `gorm:"column:messages;type:text"`
	Attributes string    `gorm:"column:attributes;type:text"`
	OccurredAt time.Time `gorm:"column:occurred_at;index"`
}

func (HistoryModel) TableName() string { return "option_history" }

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// Models 需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		&OptionConfigModel{},
		&OutboxMessageModel{},
		&HistoryModel{},
	}
}
