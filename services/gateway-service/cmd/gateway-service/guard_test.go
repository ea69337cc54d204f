package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func guardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func guardRoundTrip(t *testing.T, statusBody string, statusCode int, path string) *httptest.ResponseRecorder {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(statusBody))
	}))
	t.Cleanup(upstream.Close)

	g := newSubscriptionGuard(upstream.URL, guardLogger())
	h := g.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "http://example.com"+path, nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Company-Id", "company-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw
}

func TestGuardBlocksBlockedAccounts(t *testing.T) {
	rw := guardRoundTrip(t, `{"decision":"blocked"}`, http.StatusOK, "/api/v1/catalog/barbers")
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}
}

func TestGuardRequiresSubscriptionWhenExpired(t *testing.T) {
	rw := guardRoundTrip(t, `{"decision":"trial_expired"}`, http.StatusOK, "/api/v1/catalog/barbers")
	if rw.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rw.Code)
	}
}

func TestGuardWarnsDuringGracePeriod(t *testing.T) {
	rw := guardRoundTrip(t, `{"decision":"grace_period","days_remaining":2}`, http.StatusOK, "/api/v1/catalog/barbers")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw.Header().Get("X-Subscription-Warning") == "" {
		t.Fatal("expected a subscription warning header")
	}
}

func TestGuardPassesFullAccess(t *testing.T) {
	rw := guardRoundTrip(t, `{"decision":"full_access"}`, http.StatusOK, "/api/v1/catalog/barbers")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if rw.Header().Get("X-Subscription-Warning") != "" {
		t.Fatal("did not expect a warning header")
	}
}

func TestGuardFailsOpenOnUpstreamError(t *testing.T) {
	rw := guardRoundTrip(t, `oops`, http.StatusInternalServerError, "/api/v1/catalog/barbers")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rw.Code)
	}
}

func TestGuardSkipsExemptPrefixesWhenExpired(t *testing.T) {
	// Billing routes must stay reachable so an expired tenant can pay.
	rw := guardRoundTrip(t, `{"decision":"trial_expired"}`, http.StatusOK, "/api/v1/billing/checkout")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected exempt path to pass, got %d", rw.Code)
	}
}

func TestGuardEnforcesBlockOnExemptPaths(t *testing.T) {
	rw := guardRoundTrip(t, `{"decision":"blocked"}`, http.StatusOK, "/api/v1/billing/checkout")
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected block to apply everywhere, got %d", rw.Code)
	}
}
