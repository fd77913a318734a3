package service

import (
	"context"
	"encoding/json"
	"fmt"

	"brickvest/internal/model"
	"brickvest/internal/repository"

	"gorm.io/gorm"
)

// Notifier queues user-facing notifications. Dispatch to Kafka happens
// later from the outbox sender, never inline with a store transaction.
type Notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, eventType, key string, payload interface{}) error
}

// OutboxNotifier writes notifications to the transactional outbox table.
type OutboxNotifier struct {
	outboxRepo *repository.OutboxRepository
	topic      string
}

func NewOutboxNotifier(db *gorm.DB, topic string) *OutboxNotifier {
	return &OutboxNotifier{
		outboxRepo: repository.NewOutboxRepository(db),
		topic:      topic,
	}
}

func (n *OutboxNotifier) Enqueue(ctx context.Context, tx *gorm.DB, eventType, key string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	return n.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      n.topic,
		Payload:    string(raw),
		Status:     model.OutboxStatusPending,
	})
}
