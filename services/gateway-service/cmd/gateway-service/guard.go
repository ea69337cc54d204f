package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barbersoft/backend/libs/httpx"
)

// subscriptionGuard consults the account service before letting traffic
// through to product endpoints. Billing and plan routes stay reachable
// so an expired tenant can still pay their way back in.
type subscriptionGuard struct {
	statusURL string
	client    *http.Client
	logger    *slog.Logger
	exempt    []string
}

type accessStatus struct {
	Decision      string `json:"decision"`
	DaysRemaining int    `json:"days_remaining"`
	Degraded      bool   `json:"degraded"`
}

func newSubscriptionGuard(statusURL string, logger *slog.Logger) *subscriptionGuard {
	return &subscriptionGuard{
		statusURL: statusURL,
		client:    &http.Client{Timeout: 3 * time.Second},
		logger:    logger,
		exempt: []string{
			"/api/v1/plans",
			"/api/v1/billing",
			"/api/v1/admin",
		},
	}
}

func (g *subscriptionGuard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, err := g.check(r)
		if err != nil {
			// An access-service outage must not take the product down.
			g.logger.Warn("access check failed, letting request through", "err", err, "path", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		switch status.Decision {
		case "blocked":
			// The administrative block applies everywhere; only support
			// lifts it.
			httpx.WriteError(w, http.StatusForbidden, "account_blocked", "this account has been blocked, contact support")
			return
		case "trial_expired":
			// Payment surfaces stay reachable so the tenant can resubscribe.
			if !g.isExempt(r.URL.Path) {
				httpx.WriteError(w, http.StatusPaymentRequired, "subscription_required", "subscription required to continue")
				return
			}
		case "grace_period":
			if status.DaysRemaining > 0 {
				w.Header().Set("X-Subscription-Warning", fmt.Sprintf("subscription ends in %d days", status.DaysRemaining))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (g *subscriptionGuard) isExempt(path string) bool {
	for _, prefix := range g.exempt {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *subscriptionGuard) check(r *http.Request) (accessStatus, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, g.statusURL, nil)
	if err != nil {
		return accessStatus{}, err
	}
	for _, h := range []string{"X-User-Id", "X-Company-Id", "X-Role", "X-Request-Id"} {
		if v := r.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return accessStatus{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return accessStatus{}, fmt.Errorf("access status returned %d", resp.StatusCode)
	}

	var status accessStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return accessStatus{}, err
	}
	return status, nil
}
