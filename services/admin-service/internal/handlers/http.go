package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barbersoft/backend/services/admin-service/internal/export"
)

type Handler struct {
	exporter *export.Exporter
	logger   *slog.Logger
}

func New(exporter *export.Exporter, logger *slog.Logger) *Handler {
	return &Handler{exporter: exporter, logger: logger}
}

// The gateway only routes super_admin traffic here, but each handler
// re-checks the role header so a misrouted request cannot dump data.
func requireSuperAdmin(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("X-Role") != "super_admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireSuperAdmin(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(export.Catalog)
}

func (h *Handler) ExportTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireSuperAdmin(w, r) {
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("table"))
	if name == "" {
		http.Error(w, "table is required", http.StatusBadRequest)
		return
	}

	rs, err := h.exporter.FetchTable(r.Context(), name)
	if err != nil {
		if errors.Is(err, export.ErrUnknownTable) {
			http.Error(w, "unknown table", http.StatusNotFound)
			return
		}
		h.logger.Error("table export failed", "table", name, "err", err)
		http.Error(w, "failed to export table", http.StatusInternalServerError)
		return
	}

	body := export.EncodeCSV(name, rs)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(name, time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	h.logger.Info("table exported", "table", name, "rows", len(rs.Rows))
}

func (h *Handler) ExportAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireSuperAdmin(w, r) {
		return
	}

	// ?tables=a,b exports a subset; absent means the whole catalog.
	names := export.TableNames()
	if raw := strings.TrimSpace(r.URL.Query().Get("tables")); raw != "" {
		names = names[:0]
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			if !export.IsExportable(name) {
				http.Error(w, "unknown table: "+name, http.StatusBadRequest)
				return
			}
			names = append(names, name)
		}
		if len(names) == 0 {
			http.Error(w, "tables is empty", http.StatusBadRequest)
			return
		}
	}

	sections := h.exporter.FetchTables(r.Context(), names)
	body := export.EncodeBulkCSV(sections)

	exported := 0
	failed := 0
	for _, s := range sections {
		if s.Err != nil {
			failed++
			h.logger.Warn("bulk export: table failed", "table", s.Name, "err", s.Err)
			continue
		}
		exported++
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.BulkFilename(time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)

	h.logger.Info("bulk export finished", "tables", exported, "failed", failed)
}

func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !requireSuperAdmin(w, r) {
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("table"))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if name == "" || name == "all" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(export.AllSQL()))
		return
	}
	sql, ok := export.TableSQL(name)
	if !ok {
		http.Error(w, "unknown table", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sql + "\n"))
}
