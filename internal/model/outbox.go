package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// Notification event types written to the outbox.
const (
	NotifyRewardCredited      = "reward.credited"
	NotifyAllocationPending   = "reinvest.allocation.pending_approval"
	NotifyAllocationSubmitted = "reinvest.allocation.submitted"
	NotifyAllocationFailed    = "reinvest.allocation.failed"
)

// OutboxMessage is a notification queued inside the same database
// transaction as the financial effect it announces. A background sender
// flushes pending rows to Kafka, so external dispatch never happens
// inside a store transaction.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
