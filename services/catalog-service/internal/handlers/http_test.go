package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBarberRequestNormalize(t *testing.T) {
	rate := 35.0
	inactive := false
	req := barberRequest{
		UnitID:         " u1 ",
		Name:           " João ",
		CommissionRate: &rate,
		IsActive:       &inactive,
	}
	b, msg := req.normalize()
	if msg != "" {
		t.Fatalf("unexpected error: %s", msg)
	}
	if b.UnitID != "u1" || b.Name != "João" {
		t.Fatalf("fields not trimmed: %+v", b)
	}
	if b.CommissionRate != 35 || b.IsActive {
		t.Fatalf("overrides not applied: %+v", b)
	}
	if b.CalendarColor == "" {
		t.Fatal("expected default calendar color")
	}
}

func TestBarberRequestDefaults(t *testing.T) {
	req := barberRequest{UnitID: "u1", Name: "Pedro"}
	b, msg := req.normalize()
	if msg != "" {
		t.Fatalf("unexpected error: %s", msg)
	}
	if b.CommissionRate != 50 || !b.IsActive {
		t.Fatalf("defaults wrong: %+v", b)
	}
}

func TestBarberRequestRejectsBadRate(t *testing.T) {
	rate := 120.0
	req := barberRequest{UnitID: "u1", Name: "Pedro", CommissionRate: &rate}
	if _, msg := req.normalize(); msg == "" {
		t.Fatal("expected validation error for rate above 100")
	}
}

func TestHandlersRequireCompanyHeader(t *testing.T) {
	h := New(nil)

	endpoints := []struct {
		method string
		fn     http.HandlerFunc
	}{
		{http.MethodGet, h.ListUnits},
		{http.MethodPost, h.CreateBarber},
		{http.MethodGet, h.ListServices},
		{http.MethodGet, h.BarberEarnings},
	}
	for _, ep := range endpoints {
		req := httptest.NewRequest(ep.method, "/", strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		ep.fn(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", ep.method, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestParseWindow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-03-01T00:00:00Z&to=2026-03-31T00:00:00Z", nil)
	from, to, msg := parseWindow(req)
	if msg != "" {
		t.Fatalf("unexpected error: %s", msg)
	}
	if !to.After(from) {
		t.Fatal("to should be after from")
	}

	req = httptest.NewRequest(http.MethodGet, "/?from=2026-03-31T00:00:00Z&to=2026-03-01T00:00:00Z", nil)
	if _, _, msg := parseWindow(req); msg == "" {
		t.Fatal("expected error for inverted window")
	}
}
