// Package subscriptions holds subscription state transitions and their side
// effects (outbox events), shared by the webhook handler and any future
// reconciliation job.
package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/backflowhq/platform/services/billing-service/internal/entitlements"
	"github.com/backflowhq/platform/services/billing-service/internal/outbox"
	"github.com/backflowhq/platform/services/billing-service/internal/storage"
)

type Service struct {
	repo       *storage.Repository
	outboxRepo *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outboxRepo: outboxRepo}
}

func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, companyID, tier string, activatedAt time.Time, stripeCustomerID, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		CompanyID:            companyID,
		Tier:                 tier,
		Status:               "active",
		Provider:             "stripe",
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}); err != nil {
		return err
	}

	// Emit only when the effective entitlement changes; provider id updates
	// alone should not fan out.
	if ok && existing.Status == "active" && existing.Tier == tier {
		return nil
	}
	return s.emit(ctx, tx, outbox.EventSubscriptionActivated, companyID, tier, "activated_at", activatedAt)
}

func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, companyID string, canceledAt time.Time, stripeCustomerID, stripeSubscriptionID string, periodStart, periodEnd *time.Time) error {
	existing, ok, err := s.repo.GetSubscriptionForUpdate(ctx, tx, companyID)
	if err != nil {
		return err
	}

	if err := s.repo.UpsertSubscription(ctx, tx, storage.Subscription{
		CompanyID:            companyID,
		Tier:                 "free",
		Status:               "canceled",
		Provider:             "stripe",
		StripeCustomerID:     stripeCustomerID,
		StripeSubscriptionID: stripeSubscriptionID,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}); err != nil {
		return err
	}

	if ok && existing.Status == "canceled" && existing.Tier == "free" {
		return nil
	}
	return s.emit(ctx, tx, outbox.EventSubscriptionCanceled, companyID, "free", "canceled_at", canceledAt)
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType, companyID, tier, whenKey string, when time.Time) error {
	limits := entitlements.LimitsForTier(tier)
	payload, err := json.Marshal(map[string]any{
		"company_id":               companyID,
		"tier":                     limits.Tier,
		"max_monthly_appointments": limits.MaxMonthlyAppointments,
		whenKey:                    when.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "subscription",
		AggregateID:   companyID,
		EventType:     eventType,
		Payload:       payload,
	})
}
