package service

import (
	"context"

	"brickvest/internal/event"
)

// EventDispatcher fans external lifecycle events out to the reward and
// reinvest services. It is the single implementation of the consumer's
// handler interface and is also reused by the webhook-style HTTP
// ingestion endpoints, so both transports share one idempotent path.
type EventDispatcher struct {
	rewards  *RewardService
	reinvest *ReinvestService
}

func NewEventDispatcher(rewards *RewardService, reinvest *ReinvestService) *EventDispatcher {
	return &EventDispatcher{rewards: rewards, reinvest: reinvest}
}

func (d *EventDispatcher) HandleUserApproved(ctx context.Context, e event.UserApprovedEvent) error {
	return d.rewards.OnUserApproved(ctx, e.UserID)
}

func (d *EventDispatcher) HandleInvestmentCreated(ctx context.Context, e event.InvestmentCreatedEvent) error {
	if e.Status == "failed" || e.Status == "cancelled" {
		return nil
	}
	return d.rewards.OnQualifyingInvestment(ctx, e.UserID, e.Amount, e.Currency)
}

func (d *EventDispatcher) HandleRentalPayout(ctx context.Context, e event.RentalPayoutEvent) error {
	_, err := d.reinvest.OnRentalPayout(ctx, e)
	return err
}
