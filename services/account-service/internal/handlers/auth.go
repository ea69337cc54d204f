package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/barbersoft/backend/libs/auth"
	"github.com/barbersoft/backend/libs/db"
	"github.com/barbersoft/backend/services/account-service/internal/access"
	"github.com/barbersoft/backend/services/account-service/internal/audit"
	"github.com/barbersoft/backend/services/account-service/internal/outbox"
	"github.com/barbersoft/backend/services/account-service/internal/sessions"
	"github.com/barbersoft/backend/services/account-service/internal/storage"
)

// trialDaysSource reads default_trial_days from the plan settings the
// billing back office maintains. 0 means "not configured".
type trialDaysSource interface {
	DefaultTrialDays(ctx context.Context) (int, error)
}

type AuthHandler struct {
	signer       TokenSigner
	pool         *db.Pool
	users        *storage.UserRepository
	companies    *storage.CompanyRepository
	roles        *storage.RoleRepository
	audit        *audit.Repository
	outbox       *outbox.Repository
	refreshRepo  *sessions.RefreshRepository
	refreshTTL   time.Duration
	planSettings trialDaysSource
	trialDays    int
}

func NewAuthHandler(
	signer TokenSigner,
	pool *db.Pool,
	users *storage.UserRepository,
	companies *storage.CompanyRepository,
	roles *storage.RoleRepository,
	auditRepo *audit.Repository,
	outboxRepo *outbox.Repository,
	refreshRepo *sessions.RefreshRepository,
	planSettings trialDaysSource,
	refreshTTL time.Duration,
	trialDays int,
) *AuthHandler {
	if trialDays <= 0 {
		trialDays = 14
	}
	return &AuthHandler{
		signer:       signer,
		pool:         pool,
		users:        users,
		companies:    companies,
		roles:        roles,
		audit:        auditRepo,
		outbox:       outboxRepo,
		refreshRepo:  refreshRepo,
		refreshTTL:   refreshTTL,
		planSettings: planSettings,
		trialDays:    trialDays,
	}
}

// resolveTrialDays prefers the configured plan settings value; a missing
// row or a lookup failure falls back to the static default so signup
// never breaks on a settings outage.
func (h *AuthHandler) resolveTrialDays(ctx context.Context) int {
	if h.planSettings == nil {
		return h.trialDays
	}
	days, err := h.planSettings.DefaultTrialDays(ctx)
	if err != nil || days <= 0 {
		return h.trialDays
	}
	return days
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
	CompanyName string `json:"company_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID    string   `json:"user_id"`
	CompanyID string   `json:"company_id,omitempty"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}
	if req.CompanyName == "" {
		http.Error(w, "company_name required", http.StatusBadRequest)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	trialEndsAt := time.Now().UTC().Add(time.Duration(h.resolveTrialDays(ctx)) * 24 * time.Hour)
	user := storage.User{
		ID:           uuid.NewString(),
		CompanyID:    uuid.NewString(),
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
	}
	company := storage.Company{
		ID:          user.CompanyID,
		OwnerUserID: user.ID,
		Name:        req.CompanyName,
		PlanStatus:  access.PlanStatusTrial,
		TrialEndsAt: &trialEndsAt,
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.users.CreateTx(ctx, tx, storage.User{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
	}); err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	if err := h.companies.CreateTx(ctx, tx, company); err != nil {
		http.Error(w, "failed to create company", http.StatusInternalServerError)
		return
	}
	if err := h.users.SetCompanyTx(ctx, tx, user.ID, company.ID); err != nil {
		http.Error(w, "failed to link company", http.StatusInternalServerError)
		return
	}
	if err := h.roles.GrantTx(ctx, tx, user.ID, company.ID, string(access.RoleOwner)); err != nil {
		http.Error(w, "failed to grant role", http.StatusInternalServerError)
		return
	}

	companyPayload, err := json.Marshal(map[string]any{
		"company_id":    company.ID,
		"owner_user_id": user.ID,
		"name":          company.Name,
		"plan_status":   company.PlanStatus,
		"trial_ends_at": trialEndsAt.Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to marshal company event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "company",
		AggregateID:   company.ID,
		EventType:     "account.company.created.v1",
		Payload:       companyPayload,
	}); err != nil {
		http.Error(w, "failed to enqueue company event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	if h.audit != nil {
		_ = h.audit.Record(ctx, "account.register", user.ID, map[string]any{
			"company_id": company.ID,
			"email":      user.Email,
		})
	}

	token, err := issueJWT(h.signer, user.ID, company.ID, string(access.RoleOwner))
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.issueRefreshToken(ctx, user.ID)
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(loginResponse{
		AccessToken:  token,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	roles, err := h.roles.ListForUser(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to lookup roles", http.StatusInternalServerError)
		return
	}

	token, err := issueJWT(h.signer, user.ID, user.CompanyID, primaryRole(roles))
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.issueRefreshToken(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(loginResponse{
		AccessToken:  token,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	hash := sessions.HashToken(req.RefreshToken)
	session, err := h.refreshRepo.GetByHash(r.Context(), hash)
	if err != nil {
		if sessions.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}
	if session.RevokedAt != nil || session.ExpiresAt.Before(time.Now()) {
		http.Error(w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), session.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}

	roles, err := h.roles.ListForUser(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to lookup roles", http.StatusInternalServerError)
		return
	}

	if err := h.refreshRepo.Revoke(r.Context(), session.ID); err != nil {
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}

	newRefreshToken, err := h.issueRefreshToken(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to issue refresh token", http.StatusInternalServerError)
		return
	}
	newAccessToken, err := issueJWT(h.signer, user.ID, user.CompanyID, primaryRole(roles))
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(loginResponse{
		AccessToken:  newAccessToken,
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	hash := sessions.HashToken(req.RefreshToken)
	session, err := h.refreshRepo.GetByHash(r.Context(), hash)
	if err != nil {
		if sessions.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "failed to lookup refresh token", http.StatusInternalServerError)
		return
	}

	if session.RevokedAt == nil {
		if err := h.refreshRepo.Revoke(r.Context(), session.ID); err != nil {
			http.Error(w, "failed to revoke refresh token", http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	claims, err := h.signer.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(r.Context(), claims.Sub)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	roles, err := h.roles.ListForUser(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "failed to lookup roles", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(meResponse{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Email:     user.Email,
		Name:      user.Name,
		Roles:     roles,
	})
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jwks := h.signer.JWKS()
	if len(jwks) == 0 {
		http.Error(w, "jwks not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": jwks,
	})
}

// super_admin outranks owner, owner outranks barber. The token carries a
// single role; the full role list comes from /api/v1/auth/me.
func primaryRole(roles []string) string {
	best := string(access.RoleBarber)
	for _, role := range roles {
		switch role {
		case string(access.RoleSuperAdmin):
			return role
		case string(access.RoleOwner):
			best = role
		}
	}
	return best
}

func issueJWT(signer TokenSigner, userID string, companyID string, role string) (string, error) {
	now := time.Now().Unix()
	return signer.Sign(auth.Claims{
		Sub:       userID,
		CompanyID: companyID,
		Role:      role,
		Iat:       now,
		Exp:       time.Now().Add(1 * time.Hour).Unix(),
	})
}

func (h *AuthHandler) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	raw, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(h.refreshTTL)
	if _, err := h.refreshRepo.Create(ctx, userID, raw, expiresAt); err != nil {
		return "", err
	}
	return raw, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
