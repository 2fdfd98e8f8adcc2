package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/backflowhq/platform/services/billing-service/internal/outbox"
	"github.com/backflowhq/platform/services/billing-service/internal/storage"
	"github.com/backflowhq/platform/services/billing-service/internal/subscriptions"
)

type Handler struct {
	repo             *storage.Repository
	outboxRepo       *outbox.Repository
	subSvc           *subscriptions.Service
	logger           *slog.Logger
	webhookSecret    string
	webhookTolerance time.Duration
}

type Config struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Handler{
		repo:             repo,
		outboxRepo:       outboxRepo,
		subSvc:           subscriptions.New(repo, outboxRepo),
		logger:           logger,
		webhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		webhookTolerance: time.Duration(tolSeconds) * time.Second,
	}
}

// StripeWebhook handles Stripe webhooks. There is no JWT here; the signature
// verification is the auth.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.webhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.webhookSecret, h.webhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	// Idempotency: ignore replayed Stripe events.
	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("billing provider event duplicate ignored",
				"provider_event_id", evt.ID, "event_type", evtType)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, "billing.provider.stripe.webhook", "", map[string]any{
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		companyID := strings.TrimSpace(session.Metadata["company_id"])
		tier := strings.TrimSpace(strings.ToLower(session.Metadata["tier"]))
		if companyID == "" || tier == "" {
			h.logger.Warn("stripe: missing metadata on checkout session (company_id/tier)")
			break
		}
		customerID := ""
		if session.Customer != nil {
			customerID = session.Customer.ID
		}
		subscriptionID := ""
		if session.Subscription != nil {
			subscriptionID = session.Subscription.ID
		}
		if err := h.subSvc.ApplyActivated(r.Context(), tx, companyID, tier, occurredAt, customerID, subscriptionID, nil, nil); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.created", "customer.subscription.updated":
		sub, ok := decodeSubscription(evt.Data.Raw, h.logger)
		if !ok {
			break
		}
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			break
		}
		companyID := strings.TrimSpace(sub.Metadata["company_id"])
		tier := strings.TrimSpace(strings.ToLower(sub.Metadata["tier"]))
		if companyID == "" || tier == "" {
			h.logger.Warn("stripe: missing metadata on subscription (company_id/tier)")
			break
		}
		cps, cpe := periodBounds(sub)
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		if err := h.subSvc.ApplyActivated(r.Context(), tx, companyID, tier, occurredAt, customerID, sub.ID, cps, cpe); err != nil {
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.deleted":
		sub, ok := decodeSubscription(evt.Data.Raw, h.logger)
		if !ok {
			break
		}
		companyID := strings.TrimSpace(sub.Metadata["company_id"])
		if companyID == "" {
			h.logger.Warn("stripe: missing metadata on subscription (company_id)")
			break
		}
		cps, cpe := periodBounds(sub)
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		if err := h.subSvc.ApplyCanceled(r.Context(), tx, companyID, occurredAt, customerID, sub.ID, cps, cpe); err != nil {
			http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeSubscription(raw []byte, logger *slog.Logger) (stripe.Subscription, bool) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		logger.Error("stripe: invalid subscription payload", "err", err)
		return stripe.Subscription{}, false
	}
	return sub, true
}

func periodBounds(sub stripe.Subscription) (*time.Time, *time.Time) {
	var cps *time.Time
	var cpe *time.Time
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		cps = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		cpe = &t
	}
	return cps, cpe
}

func (h *Handler) recordAudit(ctx context.Context, tx pgx.Tx, eventType, companyID string, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return h.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType: eventType,
		ActorType: "provider",
		CompanyID: companyID,
		Metadata:  raw,
	})
}
