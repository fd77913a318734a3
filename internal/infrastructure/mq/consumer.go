package mq

import (
	"context"
	"log"

	"brickvest/internal/config"
	"brickvest/internal/event"

	"github.com/IBM/sarama"
)

// EventHandler receives the decoded lifecycle events. Implementations
// must be idempotent: the consumer re-delivers on error and Kafka gives
// at-least-once delivery anyway.
type EventHandler interface {
	HandleUserApproved(ctx context.Context, e event.UserApprovedEvent) error
	HandleInvestmentCreated(ctx context.Context, e event.InvestmentCreatedEvent) error
	HandleRentalPayout(ctx context.Context, e event.RentalPayoutEvent) error
}

// EventConsumer is a sarama consumer group subscribed to the three
// external event topics.
type EventConsumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	cfg     *config.KafkaConfig
	handler EventHandler
}

func NewEventConsumer(cfg *config.KafkaConfig, handler EventHandler) (*EventConsumer, error) {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, kafkaConfig)
	if err != nil {
		return nil, err
	}

	return &EventConsumer{
		group: group,
		topics: []string{
			cfg.Topic.UserApproved,
			cfg.Topic.InvestmentCreated,
			cfg.Topic.RentalPayout,
		},
		cfg:     cfg,
		handler: handler,
	}, nil
}

// Start consumes until the context is cancelled.
func (c *EventConsumer) Start(ctx context.Context) {
	log.Println("[EventConsumer] started")

	for {
		if err := c.group.Consume(ctx, c.topics, &groupHandler{consumer: c}); err != nil {
			log.Printf("[EventConsumer] consume error: %v", err)
		}
		if ctx.Err() != nil {
			log.Println("[EventConsumer] stopped")
			return
		}
	}
}

func (c *EventConsumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	consumer *EventConsumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.consumer.dispatch(session.Context(), msg); err != nil {
			// Leave the offset unmarked so the message is redelivered.
			// Every handler is idempotent, so redelivery is safe.
			log.Printf("[EventConsumer] handle %s failed: %v", msg.Topic, err)
			continue
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func (c *EventConsumer) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case c.cfg.Topic.UserApproved:
		e, err := event.DecodeUserApproved(msg.Value)
		if err != nil {
			// Malformed payloads are logged and skipped, never retried.
			log.Printf("[EventConsumer] drop malformed message on %s: %v", msg.Topic, err)
			return nil
		}
		return c.handler.HandleUserApproved(ctx, e)
	case c.cfg.Topic.InvestmentCreated:
		e, err := event.DecodeInvestmentCreated(msg.Value)
		if err != nil {
			log.Printf("[EventConsumer] drop malformed message on %s: %v", msg.Topic, err)
			return nil
		}
		return c.handler.HandleInvestmentCreated(ctx, e)
	case c.cfg.Topic.RentalPayout:
		e, err := event.DecodeRentalPayout(msg.Value)
		if err != nil {
			log.Printf("[EventConsumer] drop malformed message on %s: %v", msg.Topic, err)
			return nil
		}
		return c.handler.HandleRentalPayout(ctx, e)
	}
	return nil
}
