package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"

	"github.com/barbersoft/backend/services/billing-service/internal/outbox"
	"github.com/barbersoft/backend/services/billing-service/internal/pricing"
	"github.com/barbersoft/backend/services/billing-service/internal/storage"
	"github.com/barbersoft/backend/services/billing-service/internal/subscriptions"
)

type Handler struct {
	repo                   *storage.Repository
	outboxRepo             *outbox.Repository
	subSvc                 *subscriptions.Service
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	stripeSecretKey        string
	stripePrices           map[string]string
	checkoutSuccessURL     string
	checkoutCancelURL      string
}

type Config struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	StripeSecretKey               string
	StripePriceInicial            string
	StripePriceProfissional       string
	StripePriceFranquias          string
	CheckoutSuccessURL            string
	CheckoutCancelURL             string
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Handler{
		repo:                   repo,
		outboxRepo:             outboxRepo,
		subSvc:                 subscriptions.New(repo, outboxRepo),
		logger:                 logger,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripePrices: map[string]string{
			pricing.TierInicial:      strings.TrimSpace(cfg.StripePriceInicial),
			pricing.TierProfissional: strings.TrimSpace(cfg.StripePriceProfissional),
			pricing.TierFranquias:    strings.TrimSpace(cfg.StripePriceFranquias),
		},
		checkoutSuccessURL: strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:  strings.TrimSpace(cfg.CheckoutCancelURL),
	}
}

type localWebhookRequest struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	CompanyID     string `json:"company_id"`
	Tier          string `json:"tier"`
	PartnerEndsAt string `json:"partner_ends_at,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// LocalWebhook applies subscription transitions without a payment
// provider (partner grants, manual activations, dev environments).
// Types: subscription.activated | subscription.canceled |
// subscription.payment_failed | subscription.partner_granted.
func (h *Handler) LocalWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req localWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.EventID = strings.TrimSpace(req.EventID)
	req.Type = strings.TrimSpace(req.Type)
	req.CompanyID = strings.TrimSpace(req.CompanyID)
	req.Tier = strings.TrimSpace(strings.ToLower(req.Tier))
	req.OccurredAt = strings.TrimSpace(req.OccurredAt)

	if req.EventID == "" || req.Type == "" || req.CompanyID == "" || req.OccurredAt == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		http.Error(w, "invalid occurred_at", http.StatusBadRequest)
		return
	}

	h.logger.Info("billing provider event received",
		"provider", "local",
		"provider_event_id", req.EventID,
		"event_type", req.Type,
		"company_id", req.CompanyID,
		"occurred_at", occurredAt.UTC().Format(time.RFC3339),
	)

	role := r.Header.Get("X-Role")
	callerCompanyID := r.Header.Get("X-Company-Id")
	if role != "super_admin" && callerCompanyID != "" && callerCompanyID != req.CompanyID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	payloadRaw, _ := json.Marshal(req)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "local",
		ProviderEventID: req.EventID,
		EventType:       req.Type,
		Payload:         payloadRaw,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("billing provider event duplicate ignored", "provider", "local", "provider_event_id", req.EventID, "event_type", req.Type)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.provider.local.webhook", "provider", req.CompanyID, map[string]any{
		"provider":          "local",
		"provider_event_id": req.EventID,
		"event_type":        req.Type,
		"occurred_at":       occurredAt.UTC().Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	var applyErr error
	switch req.Type {
	case "subscription.activated":
		if req.Tier == "" {
			http.Error(w, "tier is required for subscription.activated", http.StatusBadRequest)
			return
		}
		applyErr = h.subSvc.ApplyActivated(r.Context(), tx, req.CompanyID, req.Tier, occurredAt, "", "")
	case "subscription.canceled":
		applyErr = h.subSvc.ApplyCanceled(r.Context(), tx, req.CompanyID, occurredAt, "", "")
	case "subscription.payment_failed":
		applyErr = h.subSvc.ApplyOverdue(r.Context(), tx, req.CompanyID, occurredAt)
	case "subscription.partner_granted":
		var endsAt *time.Time
		if req.PartnerEndsAt != "" {
			t, err := time.Parse(time.RFC3339, req.PartnerEndsAt)
			if err != nil {
				http.Error(w, "invalid partner_ends_at", http.StatusBadRequest)
				return
			}
			endsAt = &t
		}
		applyErr = h.subSvc.ApplyPartnerGranted(r.Context(), tx, req.CompanyID, endsAt, occurredAt)
	default:
		http.Error(w, "unsupported type", http.StatusBadRequest)
		return
	}
	if applyErr != nil {
		if errors.Is(applyErr, subscriptions.ErrCompanyNotFound) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to apply transition", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// GetSubscription returns the caller's plan state for the billing page.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := strings.TrimSpace(r.URL.Query().Get("company_id"))
	if companyID == "" {
		companyID = strings.TrimSpace(r.Header.Get("X-Company-Id"))
	}
	if companyID == "" {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}

	role := r.Header.Get("X-Role")
	callerCompanyID := r.Header.Get("X-Company-Id")
	if role != "super_admin" && callerCompanyID != "" && callerCompanyID != companyID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	company, err := h.repo.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load company", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"company_id":  company.ID,
		"plan_status": company.PlanStatus,
		"is_blocked":  company.IsBlocked,
		"updated_at":  company.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if company.TrialEndsAt != nil {
		resp["trial_ends_at"] = company.TrialEndsAt.UTC().Format(time.RFC3339)
	}
	if company.PartnerEndsAt != nil {
		resp["partner_ends_at"] = company.PartnerEndsAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPlanSettings is the public read behind the plan selection page.
func (h *Handler) GetPlanSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	settings, err := h.repo.GetPlanSettings(r.Context())
	if err != nil {
		http.Error(w, "failed to load plan settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type planSettingsRequest struct {
	Inicial               *tierPriceRequest `json:"inicial"`
	Profissional          *tierPriceRequest `json:"profissional"`
	Franquias             *tierPriceRequest `json:"franquias"`
	AnnualDiscountPercent *float64          `json:"annual_discount_percent"`
	DefaultTrialDays      *int              `json:"default_trial_days"`
}

type tierPriceRequest struct {
	Monthly *float64 `json:"monthly"`
	Annual  *float64 `json:"annual"`
}

// UpdatePlanSettings is the super_admin back-office editor. Absent
// fields keep their stored values; a monthly price change rewrites that
// tier's annual price, while an explicit annual value wins over the
// derived default.
func (h *Handler) UpdatePlanSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-Role") != "super_admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req planSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	settings, err := h.repo.GetPlanSettings(r.Context())
	if err != nil {
		http.Error(w, "failed to load plan settings", http.StatusInternalServerError)
		return
	}

	if req.AnnualDiscountPercent != nil {
		d := *req.AnnualDiscountPercent
		if d < 0 || d > 50 {
			http.Error(w, "annual_discount_percent must be between 0 and 50", http.StatusBadRequest)
			return
		}
		settings.AnnualDiscountPercent = d
	}
	if req.DefaultTrialDays != nil {
		days := *req.DefaultTrialDays
		if days < 1 || days > 60 {
			http.Error(w, "default_trial_days must be between 1 and 60", http.StatusBadRequest)
			return
		}
		settings.DefaultTrialDays = days
	}

	tiers := map[string]*tierPriceRequest{
		pricing.TierInicial:      req.Inicial,
		pricing.TierProfissional: req.Profissional,
		pricing.TierFranquias:    req.Franquias,
	}
	for tier, tp := range tiers {
		if tp == nil {
			continue
		}
		if tp.Monthly != nil {
			if *tp.Monthly < 0 {
				http.Error(w, "monthly price must not be negative", http.StatusBadRequest)
				return
			}
			settings.SetMonthly(tier, *tp.Monthly)
		}
		if tp.Annual != nil {
			if *tp.Annual < 0 {
				http.Error(w, "annual price must not be negative", http.StatusBadRequest)
				return
			}
			settings.SetAnnual(tier, *tp.Annual)
		}
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	if err := h.repo.UpsertPlanSettings(r.Context(), tx, settings); err != nil {
		http.Error(w, "failed to save plan settings", http.StatusInternalServerError)
		return
	}
	if err := h.recordAudit(r.Context(), tx, r, "billing.plan_settings.updated", "", "", map[string]any{
		"annual_discount_percent": settings.AnnualDiscountPercent,
		"default_trial_days":      settings.DefaultTrialDays,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type blockRequest struct {
	CompanyID string `json:"company_id"`
	Blocked   bool   `json:"blocked"`
}

// BlockCompany is the super_admin administrative override.
func (h *Handler) BlockCompany(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-Role") != "super_admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CompanyID = strings.TrimSpace(req.CompanyID)
	if req.CompanyID == "" {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	now := time.Now().UTC()
	if err := h.subSvc.ApplyBlocked(r.Context(), tx, req.CompanyID, req.Blocked, now); err != nil {
		if errors.Is(err, subscriptions.ErrCompanyNotFound) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update block flag", http.StatusInternalServerError)
		return
	}
	if err := h.recordAudit(r.Context(), tx, r, "billing.company.block.changed", "", req.CompanyID, map[string]any{
		"blocked": req.Blocked,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type partnerRequest struct {
	CompanyID     string `json:"company_id"`
	PartnerEndsAt string `json:"partner_ends_at,omitempty"`
}

// GrantPartner marks a company as a partner account. Partners keep
// access past the deadline; the date only drives the renewal warning.
func (h *Handler) GrantPartner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-Role") != "super_admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req partnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.CompanyID = strings.TrimSpace(req.CompanyID)
	if req.CompanyID == "" {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}
	var endsAt *time.Time
	if strings.TrimSpace(req.PartnerEndsAt) != "" {
		t, err := time.Parse(time.RFC3339, req.PartnerEndsAt)
		if err != nil {
			http.Error(w, "invalid partner_ends_at", http.StatusBadRequest)
			return
		}
		endsAt = &t
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	now := time.Now().UTC()
	if err := h.subSvc.ApplyPartnerGranted(r.Context(), tx, req.CompanyID, endsAt, now); err != nil {
		if errors.Is(err, subscriptions.ErrCompanyNotFound) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to grant partner", http.StatusInternalServerError)
		return
	}
	if err := h.recordAudit(r.Context(), tx, r, "billing.partner.granted", "", req.CompanyID, map[string]any{
		"partner_ends_at": req.PartnerEndsAt,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type cancelSubscriptionRequest struct {
	CompanyID string `json:"company_id,omitempty"` // super_admin only
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelSubscriptionRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // optional body
	req.CompanyID = strings.TrimSpace(req.CompanyID)

	role := r.Header.Get("X-Role")
	callerCompanyID := strings.TrimSpace(r.Header.Get("X-Company-Id"))

	companyID := callerCompanyID
	if role == "super_admin" && req.CompanyID != "" {
		companyID = req.CompanyID
	}
	if companyID == "" {
		http.Error(w, "company_id is required", http.StatusBadRequest)
		return
	}
	if role != "super_admin" && callerCompanyID != "" && callerCompanyID != companyID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	company, err := h.repo.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "company not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load company", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	stripeSubID := strings.TrimSpace(company.StripeSubscriptionID)
	customerID := company.StripeCustomerID

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey == "" {
		// Deterministic fallback prevents accidental duplicates when
		// clients don't send Idempotency-Key.
		idemKey = "cancel:" + companyID + ":" + stripeSubID
	}

	if stripeSubID != "" && h.stripeSecretKey != "" {
		stripe.Key = h.stripeSecretKey
		cancelParams := &stripe.SubscriptionCancelParams{}
		cancelParams.IdempotencyKey = stripe.String(idemKey)
		stripeSub, err := stripesubscription.Cancel(stripeSubID, cancelParams)
		if err != nil {
			h.logger.Error("stripe subscription cancel failed", "err", err, "stripe_subscription_id", stripeSubID)
			http.Error(w, "failed to cancel subscription", http.StatusBadGateway)
			return
		}
		if stripeSub != nil && stripeSub.Customer != nil {
			customerID = stripeSub.Customer.ID
		}
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	payload, _ := json.Marshal(map[string]any{
		"company_id":             companyID,
		"stripe_subscription_id": stripeSubID,
		"idempotency_key":        idemKey,
		"canceled_at":            now.Format(time.RFC3339),
	})
	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "internal",
		ProviderEventID: idemKey,
		EventType:       "subscription.cancel",
		Payload:         payload,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record cancellation", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.subscription.cancel.requested", "", companyID, map[string]any{
		"stripe_subscription_id": stripeSubID,
		"idempotency_key":        idemKey,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	if err := h.subSvc.ApplyCanceled(r.Context(), tx, companyID, now, customerID, stripeSubID); err != nil {
		http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type checkoutRequest struct {
	Tier       string `json:"tier"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.stripeSecretKey == "" {
		http.Error(w, "stripe checkout not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	tier := strings.TrimSpace(strings.ToLower(req.Tier))
	if tier == "" {
		http.Error(w, "tier is required", http.StatusBadRequest)
		return
	}

	companyID := strings.TrimSpace(r.Header.Get("X-Company-Id"))
	if companyID == "" {
		http.Error(w, "missing company context", http.StatusBadRequest)
		return
	}

	priceID, ok := h.stripePrices[tier]
	if !ok {
		http.Error(w, "unsupported tier", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(priceID) == "" {
		http.Error(w, "stripe price id not configured for tier", http.StatusNotImplemented)
		return
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = h.checkoutSuccessURL
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = h.checkoutCancelURL
	}
	if successURL == "" || cancelURL == "" {
		http.Error(w, "success_url and cancel_url are required (or configure default URLs)", http.StatusBadRequest)
		return
	}

	// Protect the public return pages from session-id guessing.
	returnToken := newReturnToken()
	successURL = withQueryParam(successURL, "state", returnToken)
	cancelURL = withQueryParam(cancelURL, "state", returnToken)

	stripe.Key = h.stripeSecretKey

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(companyID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"company_id": companyID,
			"tier":       tier,
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"company_id": companyID,
				"tier":       tier,
			},
		},
	}
	params.AddExpand("url")
	if idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()
	if err := h.repo.UpsertCheckoutSession(r.Context(), tx, storage.CheckoutSession{
		StripeSessionID: sess.ID,
		CompanyID:       companyID,
		Tier:            tier,
		Status:          "created",
		URL:             sess.URL,
		ReturnToken:     returnToken,
	}); err != nil {
		http.Error(w, "failed to persist checkout session", http.StatusInternalServerError)
		return
	}
	if err := h.recordAudit(r.Context(), tx, r, "billing.checkout.created", "", companyID, map[string]any{
		"tier":              tier,
		"stripe_session_id": sess.ID,
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

// CheckoutSessionStatus is intentionally public: Stripe redirects the
// customer without a JWT. It returns non-sensitive state only.
func (h *Handler) CheckoutSessionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	sess, err := h.repo.GetCheckoutSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"session_id": sess.StripeSessionID,
		"tier":       sess.Tier,
		"status":     sess.Status,
		"updated_at": sess.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if sess.CompletedAt != nil {
		resp["completed_at"] = sess.CompletedAt.UTC().Format(time.RFC3339)
	}
	if sess.CanceledAt != nil {
		resp["canceled_at"] = sess.CanceledAt.UTC().Format(time.RFC3339)
	}
	if sess.ExpiredAt != nil {
		resp["expired_at"] = sess.ExpiredAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkoutAckRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Result    string `json:"result"` // success | cancel
}

// AckCheckoutReturn is public but protected by the per-session
// return_token (state).
func (h *Handler) AckCheckoutReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkoutAckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.State = strings.TrimSpace(req.State)
	req.Result = strings.TrimSpace(strings.ToLower(req.Result))
	if req.SessionID == "" || req.State == "" {
		http.Error(w, "session_id and state are required", http.StatusBadRequest)
		return
	}
	if req.Result != "success" && req.Result != "cancel" {
		http.Error(w, "invalid result", http.StatusBadRequest)
		return
	}

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	if err := h.repo.AckCheckoutReturn(r.Context(), tx, req.SessionID, req.State, req.Result, time.Now().UTC()); err != nil {
		http.Error(w, "failed to record return", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func newReturnToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func withQueryParam(rawURL string, key string, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + url.QueryEscape(value)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) recordAudit(ctx context.Context, tx pgx.Tx, r *http.Request, eventType string, actorType string, companyID string, metadata map[string]any) error {
	if actorType == "" {
		actorType = strings.TrimSpace(r.Header.Get("X-Role"))
	}
	if actorType == "" {
		actorType = "system"
	}
	actorID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if actorID == "" {
		actorID = strings.TrimSpace(r.Header.Get("X-Company-Id"))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := strings.TrimSpace(r.Header.Get("X-Request-Id")); reqID != "" {
		metadata["request_id"] = reqID
	}
	raw, _ := json.Marshal(metadata)
	return h.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType: eventType,
		ActorType: actorType,
		ActorID:   actorID,
		CompanyID: companyID,
		Metadata:  raw,
	})
}
