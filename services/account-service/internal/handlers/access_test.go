package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barbersoft/backend/services/account-service/internal/storage"
)

type stubCompanies struct {
	company storage.Company
	err     error
}

func (s *stubCompanies) GetByID(_ context.Context, _ string) (storage.Company, error) {
	if s.err != nil {
		return storage.Company{}, s.err
	}
	return s.company, nil
}

type stubRoles struct {
	roles []string
	err   error
}

func (s *stubRoles) ListForUser(_ context.Context, _ string) ([]string, error) {
	return s.roles, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(new(noopWriter), nil))
}

type noopWriter struct{}

func (*noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func doStatus(t *testing.T, h *AccessHandler, userID string, companyID string) accessStatusResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/access/status", nil)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if companyID != "" {
		req.Header.Set("X-Company-Id", companyID)
	}
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp accessStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestAccessStatus_RequiresIdentity(t *testing.T) {
	h := NewAccessHandler(&stubCompanies{}, &stubRoles{}, discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/access/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAccessStatus_BlockedCompany(t *testing.T) {
	h := NewAccessHandler(&stubCompanies{company: storage.Company{
		ID:         "c1",
		PlanStatus: "active",
		IsBlocked:  true,
	}}, &stubRoles{roles: []string{"owner"}}, discardLogger())

	resp := doStatus(t, h, "u1", "c1")
	if resp.Decision != "blocked" {
		t.Fatalf("expected blocked, got %s", resp.Decision)
	}
}

func TestAccessStatus_TrialGrace(t *testing.T) {
	endsAt := time.Now().UTC().Add(2 * 24 * time.Hour)
	h := NewAccessHandler(&stubCompanies{company: storage.Company{
		ID:          "c1",
		PlanStatus:  "trial",
		TrialEndsAt: &endsAt,
	}}, &stubRoles{roles: []string{"owner"}}, discardLogger())

	resp := doStatus(t, h, "u1", "c1")
	if resp.Decision != "grace_period" {
		t.Fatalf("expected grace_period, got %s", resp.Decision)
	}
	if resp.DaysRemaining != 2 {
		t.Fatalf("expected 2 days remaining, got %d", resp.DaysRemaining)
	}
}

func TestAccessStatus_NoCompanyHeader(t *testing.T) {
	h := NewAccessHandler(&stubCompanies{}, &stubRoles{roles: []string{"barber"}}, discardLogger())
	resp := doStatus(t, h, "u1", "")
	if resp.Decision != "no_company" {
		t.Fatalf("expected no_company, got %s", resp.Decision)
	}
}

func TestAccessStatus_UnknownCompanyTreatedAsNone(t *testing.T) {
	h := NewAccessHandler(&stubCompanies{err: pgx.ErrNoRows}, &stubRoles{roles: []string{"owner"}}, discardLogger())
	resp := doStatus(t, h, "u1", "c-gone")
	if resp.Decision != "no_company" {
		t.Fatalf("expected no_company, got %s", resp.Decision)
	}
	if resp.Degraded {
		t.Fatal("missing company is not a degraded lookup")
	}
}

func TestAccessStatus_FailsOpenOnCompanyLookupError(t *testing.T) {
	h := NewAccessHandler(&stubCompanies{err: errors.New("connection refused")}, &stubRoles{roles: []string{"owner"}}, discardLogger())
	resp := doStatus(t, h, "u1", "c1")
	if resp.Decision != "full_access" {
		t.Fatalf("expected full_access, got %s", resp.Decision)
	}
	if !resp.Degraded {
		t.Fatal("expected degraded flag on lookup failure")
	}
}

func TestAccessStatus_FailsOpenOnRoleLookupError(t *testing.T) {
	h := NewAccessHandler(&stubCompanies{}, &stubRoles{err: errors.New("connection refused")}, discardLogger())
	resp := doStatus(t, h, "u1", "c1")
	if resp.Decision != "full_access" {
		t.Fatalf("expected full_access, got %s", resp.Decision)
	}
	if !resp.Degraded {
		t.Fatal("expected degraded flag on lookup failure")
	}
}
