package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/barbersoft/backend/services/catalog-service/internal/commission"
	"github.com/barbersoft/backend/services/catalog-service/internal/storage"
)

type Handler struct {
	repo *storage.Repository
}

func New(repo *storage.Repository) *Handler {
	return &Handler{repo: repo}
}

func companyIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Company-Id"))
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	units, err := h.repo.ListUnits(r.Context(), companyID)
	if err != nil {
		http.Error(w, "failed to list units", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(units)
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		Phone   string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateUnit(r.Context(), companyID, req.Name, strings.TrimSpace(req.Address), strings.TrimSpace(req.Phone))
	if err != nil {
		http.Error(w, "failed to create unit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

type barberRequest struct {
	UnitID         string   `json:"unit_id"`
	Name           string   `json:"name"`
	Phone          string   `json:"phone"`
	PhotoURL       string   `json:"photo_url"`
	CalendarColor  string   `json:"calendar_color"`
	CommissionRate *float64 `json:"commission_rate"`
	IsActive       *bool    `json:"is_active"`
}

func (req *barberRequest) normalize() (storage.Barber, string) {
	b := storage.Barber{
		UnitID:        strings.TrimSpace(req.UnitID),
		Name:          strings.TrimSpace(req.Name),
		Phone:         strings.TrimSpace(req.Phone),
		PhotoURL:      strings.TrimSpace(req.PhotoURL),
		CalendarColor: strings.TrimSpace(req.CalendarColor),
	}
	if b.Name == "" || b.UnitID == "" {
		return b, "name and unit_id are required"
	}
	if b.CalendarColor == "" {
		b.CalendarColor = "#4F46E5"
	}
	b.CommissionRate = 50
	if req.CommissionRate != nil {
		b.CommissionRate = *req.CommissionRate
	}
	if b.CommissionRate < 0 || b.CommissionRate > 100 {
		return b, "commission_rate must be between 0 and 100"
	}
	b.IsActive = true
	if req.IsActive != nil {
		b.IsActive = *req.IsActive
	}
	return b, ""
}

func (h *Handler) CreateBarber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req barberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	b, msg := req.normalize()
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	b.CompanyID = companyID

	ok, err := h.repo.UnitBelongsToCompany(r.Context(), companyID, b.UnitID)
	if err != nil {
		http.Error(w, "failed to verify unit", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "unit not found", http.StatusNotFound)
		return
	}

	id, err := h.repo.CreateBarber(r.Context(), b)
	if err != nil {
		http.Error(w, "failed to create barber", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *Handler) ListBarbers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	barbers, err := h.repo.ListBarbers(r.Context(), companyID, 100)
	if err != nil {
		http.Error(w, "failed to list barbers", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(barbers)
}

func (h *Handler) UpdateBarber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	barberID := strings.TrimSpace(r.URL.Query().Get("id"))
	if barberID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req barberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	b, msg := req.normalize()
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	b.ID = barberID
	b.CompanyID = companyID

	ok, err := h.repo.UnitBelongsToCompany(r.Context(), companyID, b.UnitID)
	if err != nil {
		http.Error(w, "failed to verify unit", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "unit not found", http.StatusNotFound)
		return
	}

	if err := h.repo.UpdateBarber(r.Context(), b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "barber not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update barber", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteBarber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	barberID := strings.TrimSpace(r.URL.Query().Get("id"))
	if barberID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteBarber(r.Context(), companyID, barberID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "barber not found", http.StatusNotFound)
			return
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			http.Error(w, "barber has linked records", http.StatusConflict)
			return
		}
		http.Error(w, "failed to delete barber", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name         string  `json:"name"`
		DurationMins int     `json:"duration_minutes"`
		Price        float64 `json:"price"`
		Description  string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.DurationMins <= 0 {
		http.Error(w, "name and duration_minutes required", http.StatusBadRequest)
		return
	}
	if req.Price < 0 {
		http.Error(w, "price must not be negative", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateService(r.Context(), companyID, req.Name, req.DurationMins, strconv.FormatFloat(req.Price, 'f', 2, 64), req.Description)
	if err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	services, err := h.repo.ListServices(r.Context(), companyID, 100)
	if err != nil {
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(services)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("id"))
	if serviceID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Name         string  `json:"name"`
		DurationMins int     `json:"duration_minutes"`
		Price        float64 `json:"price"`
		Description  string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.DurationMins <= 0 {
		http.Error(w, "name and duration_minutes required", http.StatusBadRequest)
		return
	}
	if req.Price < 0 {
		http.Error(w, "price must not be negative", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateService(r.Context(), companyID, serviceID, req.Name, req.DurationMins, strconv.FormatFloat(req.Price, 'f', 2, 64), strings.TrimSpace(req.Description)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	serviceID := strings.TrimSpace(r.URL.Query().Get("id"))
	if serviceID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := h.repo.DeleteService(r.Context(), companyID, serviceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		UnitID     string  `json:"unit_id"`
		BarberID   string  `json:"barber_id"`
		ServiceID  string  `json:"service_id"`
		ClientName string  `json:"client_name"`
		StartTime  string  `json:"start_time"`
		EndTime    string  `json:"end_time"`
		Price      float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UnitID = strings.TrimSpace(req.UnitID)
	req.BarberID = strings.TrimSpace(req.BarberID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.UnitID == "" || req.BarberID == "" || req.ServiceID == "" || req.ClientName == "" {
		http.Error(w, "unit_id, barber_id, service_id and client_name are required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateAppointment(r.Context(), storage.Appointment{
		CompanyID:  companyID,
		UnitID:     req.UnitID,
		BarberID:   req.BarberID,
		ServiceID:  req.ServiceID,
		ClientName: req.ClientName,
		StartTime:  start.UTC(),
		EndTime:    end.UTC(),
		Price:      strconv.FormatFloat(req.Price, 'f', 2, 64),
		Status:     "scheduled",
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			http.Error(w, "unit, barber or service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	from, to, msg := parseWindow(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	items, err := h.repo.ListAppointments(r.Context(), companyID, from, to, 200)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(items)
}

func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	status := strings.TrimSpace(strings.ToLower(req.Status))
	switch status {
	case "scheduled", "completed", "no_show", "cancelled":
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	if err := h.repo.SetAppointmentStatus(r.Context(), companyID, id, status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	deletedBy := strings.TrimSpace(r.Header.Get("X-User-Id"))
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))

	if err := h.repo.DeleteAppointment(r.Context(), companyID, id, deletedBy, reason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete appointment", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type earningsRow struct {
	BarberID         string  `json:"barber_id"`
	BarberName       string  `json:"barber_name"`
	CommissionRate   float64 `json:"commission_rate"`
	ServicesTotal    float64 `json:"services_total"`
	ServicesCount    int     `json:"services_count"`
	CommissionAmount float64 `json:"commission_amount"`
}

// BarberEarnings aggregates completed revenue per barber and applies
// each barber's commission rate.
func (h *Handler) BarberEarnings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	companyID := companyIDFromHeader(r)
	if companyID == "" {
		http.Error(w, "missing X-Company-Id", http.StatusBadRequest)
		return
	}

	from, to, msg := parseWindow(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	earnings, err := h.repo.ListBarberEarnings(r.Context(), companyID, from, to)
	if err != nil {
		http.Error(w, "failed to compute earnings", http.StatusInternalServerError)
		return
	}

	out := make([]earningsRow, 0, len(earnings))
	for _, e := range earnings {
		total, err := strconv.ParseFloat(e.ServicesTotal, 64)
		if err != nil {
			total = 0
		}
		out = append(out, earningsRow{
			BarberID:         e.BarberID,
			BarberName:       e.BarberName,
			CommissionRate:   e.CommissionRate,
			ServicesTotal:    total,
			ServicesCount:    e.ServicesCount,
			CommissionAmount: commission.Amount(total, e.CommissionRate),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func parseWindow(r *http.Request) (time.Time, time.Time, string) {
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, "from and to are required (RFC3339)"
	}
	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, "invalid from"
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		return time.Time{}, time.Time{}, "invalid to"
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, "to must be after from"
	}
	return from.UTC(), to.UTC(), ""
}
