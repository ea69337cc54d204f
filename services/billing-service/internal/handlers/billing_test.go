package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHandler() *Handler {
	logger := slog.New(slog.NewTextHandler(noopWriter{}, nil))
	return New(nil, nil, logger, Config{})
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLocalWebhookRejectsBadRequests(t *testing.T) {
	h := newTestHandler()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing fields", `{"type":"subscription.activated"}`, http.StatusBadRequest},
		{"bad occurred_at", `{"event_id":"e1","type":"subscription.activated","company_id":"c1","occurred_at":"yesterday"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/local", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.LocalWebhook(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestLocalWebhookForbidsCrossCompanyCallers(t *testing.T) {
	h := newTestHandler()

	body := `{"event_id":"e1","type":"subscription.activated","company_id":"c1","tier":"inicial","occurred_at":"2026-03-01T12:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhooks/local", strings.NewReader(body))
	req.Header.Set("X-Role", "owner")
	req.Header.Set("X-Company-Id", "c2")
	rec := httptest.NewRecorder()
	h.LocalWebhook(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestUpdatePlanSettingsRequiresSuperAdmin(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/plans", strings.NewReader(`{}`))
	req.Header.Set("X-Role", "owner")
	rec := httptest.NewRecorder()
	h.UpdatePlanSettings(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestCheckoutWithoutStripeConfigured(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"tier":"inicial"}`))
	req.Header.Set("X-Company-Id", "c1")
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotImplemented)
	}
}

func TestWithQueryParam(t *testing.T) {
	if got := withQueryParam("https://app.example.com/return", "state", "a b"); got != "https://app.example.com/return?state=a+b" {
		t.Fatalf("got %q", got)
	}
	if got := withQueryParam("https://app.example.com/return?x=1", "state", "tok"); got != "https://app.example.com/return?x=1&state=tok" {
		t.Fatalf("got %q", got)
	}
}
