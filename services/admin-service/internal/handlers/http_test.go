package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/barbersoft/backend/services/admin-service/internal/export"
)

func newTestHandler() *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(export.NewExporter(nil), logger)
}

func TestExportAllRequiresSuperAdmin(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/admin/export/all", nil)
	req.Header.Set("X-Role", "owner")
	rw := httptest.NewRecorder()
	h.ExportAll(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}
}

func TestExportAllRejectsUnknownTableSelection(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/admin/export/all?tables=users,pg_shadow", nil)
	req.Header.Set("X-Role", "super_admin")
	rw := httptest.NewRecorder()
	h.ExportAll(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a name outside the catalog, got %d", rw.Code)
	}
}

func TestExportAllRejectsEmptySelection(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/admin/export/all?tables=,%20,", nil)
	req.Header.Set("X-Role", "super_admin")
	rw := httptest.NewRecorder()
	h.ExportAll(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty selection, got %d", rw.Code)
	}
}
