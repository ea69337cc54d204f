package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/barbersoft/backend/services/account-service/internal/access"
	"github.com/barbersoft/backend/services/account-service/internal/storage"
)

type companySource interface {
	GetByID(ctx context.Context, id string) (storage.Company, error)
}

type roleSource interface {
	ListForUser(ctx context.Context, userID string) ([]string, error)
}

type AccessHandler struct {
	companies companySource
	roles     roleSource
	logger    *slog.Logger
}

func NewAccessHandler(companies companySource, roles roleSource, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{companies: companies, roles: roles, logger: logger}
}

type accessStatusResponse struct {
	Decision      string `json:"decision"`
	DaysRemaining int    `json:"days_remaining"`
	PlanStatus    string `json:"plan_status,omitempty"`
	CompanyID     string `json:"company_id,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
}

// Status reports the caller's subscription decision. Lookup failures
// degrade to full access so a storage outage never locks paying
// customers out.
func (h *AccessHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	companyID := r.Header.Get("X-Company-Id")

	resp := h.evaluate(r.Context(), userID, companyID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *AccessHandler) evaluate(ctx context.Context, userID string, companyID string) accessStatusResponse {
	roleNames, err := h.roles.ListForUser(ctx, userID)
	if err != nil {
		h.logger.Warn("role lookup failed, granting access", "user_id", userID, "err", err)
		return accessStatusResponse{Decision: string(access.DecisionFullAccess), Degraded: true}
	}
	roles := make([]access.Role, 0, len(roleNames))
	for _, name := range roleNames {
		roles = append(roles, access.Role(name))
	}

	var company *access.Company
	var planStatus string
	if companyID != "" {
		record, err := h.companies.GetByID(ctx, companyID)
		if err != nil {
			if !storage.IsNotFound(err) {
				h.logger.Warn("company lookup failed, granting access", "company_id", companyID, "err", err)
				return accessStatusResponse{Decision: string(access.DecisionFullAccess), Degraded: true}
			}
		} else {
			company = &access.Company{
				ID:            record.ID,
				OwnerUserID:   record.OwnerUserID,
				Name:          record.Name,
				PlanStatus:    record.PlanStatus,
				TrialEndsAt:   record.TrialEndsAt,
				PartnerEndsAt: record.PartnerEndsAt,
				IsBlocked:     record.IsBlocked,
			}
			planStatus = record.PlanStatus
		}
	}

	result := access.Evaluate(roles, company, time.Now().UTC())
	return accessStatusResponse{
		Decision:      string(result.Decision),
		DaysRemaining: result.DaysRemaining,
		PlanStatus:    planStatus,
		CompanyID:     companyID,
	}
}
