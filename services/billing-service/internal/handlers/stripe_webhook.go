package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/barbersoft/backend/services/billing-service/internal/storage"
	"github.com/barbersoft/backend/services/billing-service/internal/subscriptions"
)

// StripeWebhook handles Stripe webhooks (no JWT auth; signature verification is the auth).
// Gateway should expose this path publicly.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
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
		"occurred_at", occurredAt.UTC().Format(time.RFC3339),
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
			h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.provider.stripe.webhook", "provider", "", map[string]any{
		"provider":          "stripe",
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.UTC().Format(time.RFC3339),
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
		_ = h.repo.MarkCheckoutSessionCompleted(r.Context(), tx, session.ID, occurredAt, customerID, subscriptionID)
		if err := h.subSvc.ApplyActivated(r.Context(), tx, companyID, tier, occurredAt, customerID, subscriptionID); err != nil {
			if errors.Is(err, subscriptions.ErrCompanyNotFound) {
				h.logger.Warn("stripe: checkout session references unknown company", "company_id", companyID)
				break
			}
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		_ = h.repo.MarkCheckoutSessionExpired(r.Context(), tx, session.ID, occurredAt)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			break
		}
		// Only treat active/trialing as entitled.
		if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
			break
		}
		companyID := strings.TrimSpace(sub.Metadata["company_id"])
		tier := strings.TrimSpace(strings.ToLower(sub.Metadata["tier"]))
		if companyID == "" || tier == "" {
			h.logger.Warn("stripe: missing metadata on subscription (company_id/tier)")
			break
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		if err := h.subSvc.ApplyActivated(r.Context(), tx, companyID, tier, occurredAt, customerID, sub.ID); err != nil {
			if errors.Is(err, subscriptions.ErrCompanyNotFound) {
				h.logger.Warn("stripe: subscription references unknown company", "company_id", companyID)
				break
			}
			http.Error(w, "failed to apply activation", http.StatusInternalServerError)
			return
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			h.logger.Error("stripe: invalid subscription payload", "err", err)
			break
		}
		companyID := strings.TrimSpace(sub.Metadata["company_id"])
		if companyID == "" {
			h.logger.Warn("stripe: missing metadata on subscription (company_id)")
			break
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		if err := h.subSvc.ApplyCanceled(r.Context(), tx, companyID, occurredAt, customerID, sub.ID); err != nil {
			if errors.Is(err, subscriptions.ErrCompanyNotFound) {
				h.logger.Warn("stripe: subscription references unknown company", "company_id", companyID)
				break
			}
			http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
			return
		}

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &invoice); err != nil {
			h.logger.Error("stripe: invalid invoice payload", "err", err)
			break
		}
		customerID := ""
		if invoice.Customer != nil {
			customerID = invoice.Customer.ID
		}
		if customerID == "" {
			h.logger.Warn("stripe: invoice without customer on payment_failed")
			break
		}
		// Invoices carry no checkout metadata, so resolve the company
		// through the stored Stripe customer id.
		companyID, found, err := h.repo.FindCompanyIDByStripeCustomer(r.Context(), tx, customerID)
		if err != nil {
			http.Error(w, "failed to resolve company", http.StatusInternalServerError)
			return
		}
		if !found {
			h.logger.Warn("stripe: payment_failed for unknown customer", "stripe_customer_id", customerID)
			break
		}
		if err := h.subSvc.ApplyOverdue(r.Context(), tx, companyID, occurredAt); err != nil {
			if errors.Is(err, subscriptions.ErrCompanyNotFound) {
				break
			}
			http.Error(w, "failed to apply overdue", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
