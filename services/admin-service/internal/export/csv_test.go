package export

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEncodeCSVRoundTrip(t *testing.T) {
	rs := ResultSet{
		Columns: []string{"name", "note"},
		Rows: [][]any{
			{"O'Hara, Jr.", nil},
		},
	}
	out := string(EncodeCSV("clients", rs))

	if !strings.HasPrefix(out, "\ufeff") {
		t.Fatal("missing UTF-8 BOM")
	}

	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(out, "\ufeff")))
	records, err := r.ReadAll()
	if err != nil {
		t.Fatalf("standard CSV parser rejected output: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0][0] != "name" || records[0][1] != "note" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][0] != "O'Hara, Jr." {
		t.Fatalf("comma and apostrophe not preserved: %q", records[1][0])
	}
	if records[1][1] != "" {
		t.Fatalf("nil should round-trip to empty, got %q", records[1][1])
	}
}

func TestEncodeCSVQuoting(t *testing.T) {
	rs := ResultSet{
		Columns: []string{"a", "b", "c"},
		Rows: [][]any{
			{`say "hi"`, "line\nbreak", "plain"},
		},
	}
	out := string(EncodeCSV("t", rs))
	body := strings.TrimPrefix(out, "\ufeff")
	if !strings.Contains(body, `"say ""hi"""`) {
		t.Errorf("quotes not doubled: %s", body)
	}
	if !strings.Contains(body, "\"line\nbreak\"") {
		t.Errorf("newline cell not quoted: %s", body)
	}
	if strings.Contains(body, `"plain"`) {
		t.Errorf("plain scalar should not be quoted: %s", body)
	}
}

func TestEncodeCSVStructuredValues(t *testing.T) {
	rs := ResultSet{
		Columns: []string{"metadata"},
		Rows: [][]any{
			{map[string]any{"k": "v"}},
		},
	}
	out := string(EncodeCSV("t", rs))
	if !strings.Contains(out, `"{""k"":""v""}"`) {
		t.Fatalf("structured value not compact-JSON quoted: %s", out)
	}
}

func TestEncodeCSVEmptyTable(t *testing.T) {
	out := string(EncodeCSV("barbers", ResultSet{Columns: []string{"id"}}))
	body := strings.TrimPrefix(out, "\ufeff")
	want := "# Table: barbers\n# No data available\n"
	if body != want {
		t.Fatalf("placeholder = %q, want %q", body, want)
	}
}

func TestEncodeBulkCSVContinuesOnError(t *testing.T) {
	sections := []TableSection{
		{
			Name: "units",
			Data: ResultSet{Columns: []string{"id", "name"}, Rows: [][]any{{"u1", "Barbearia Principal"}}},
		},
		{
			Name: "barbers",
			Err:  errors.New("relation does not exist"),
		},
	}
	out := string(EncodeBulkCSV(sections))

	if !strings.Contains(out, "# ========== TABLE: units (1 records) ==========") {
		t.Errorf("missing units section header: %s", out)
	}
	if !strings.Contains(out, "Barbearia Principal") {
		t.Error("units data missing")
	}
	if !strings.Contains(out, "# ========== TABLE: barbers ==========") {
		t.Errorf("missing barbers section header: %s", out)
	}
	if !strings.Contains(out, "# ERROR: relation does not exist") {
		t.Error("error not annotated inline")
	}
	if !strings.Contains(out, "# Export complete: 1 tables, 1 total rows") {
		t.Errorf("missing summary: %s", out)
	}
}

func TestEncodeBulkCSVSubset(t *testing.T) {
	// A selected subset produces sections for exactly the chosen tables,
	// in the requested order.
	sections := []TableSection{
		{Name: "companies", Data: ResultSet{Columns: []string{"id"}, Rows: [][]any{{"c1"}}}},
		{Name: "units", Data: ResultSet{Columns: []string{"id"}, Rows: [][]any{{"u1"}, {"u2"}}}},
	}
	out := string(EncodeBulkCSV(sections))

	companiesIdx := strings.Index(out, "# ========== TABLE: companies (1 records) ==========")
	unitsIdx := strings.Index(out, "# ========== TABLE: units (2 records) ==========")
	if companiesIdx < 0 || unitsIdx < 0 {
		t.Fatalf("missing subset sections: %s", out)
	}
	if companiesIdx > unitsIdx {
		t.Fatal("sections out of requested order")
	}
	if strings.Contains(out, "TABLE: barbers") {
		t.Fatal("unselected table leaked into the artifact")
	}
	if !strings.Contains(out, "# Export complete: 2 tables, 3 total rows") {
		t.Errorf("missing summary: %s", out)
	}
}

func TestFilenames(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)
	if got := Filename("barbers", now); got != "barbers_2026-03-10.csv" {
		t.Errorf("Filename = %q", got)
	}
	if got := BulkFilename(now); got != "barbersoft_export_2026-03-10.csv" {
		t.Errorf("BulkFilename = %q", got)
	}
}

func TestCatalogGatesTableNames(t *testing.T) {
	if !IsExportable("barbers") {
		t.Error("barbers should be exportable")
	}
	if IsExportable("pg_shadow") {
		t.Error("non-catalog table must be rejected")
	}
	if IsExportable("barbers; DROP TABLE users") {
		t.Error("injection attempt must be rejected")
	}
}

func TestAllSQLOrdering(t *testing.T) {
	sql := AllSQL()
	helperIdx := strings.Index(sql, "is_super_admin")
	firstTableIdx := strings.Index(sql, "CREATE TABLE users")
	if helperIdx < 0 || firstTableIdx < 0 {
		t.Fatal("helpers or table definitions missing")
	}
	if helperIdx > firstTableIdx {
		t.Fatal("helper predicates must precede table definitions")
	}

	// Catalog order, not dependency order.
	prev := -1
	for _, name := range TableNames() {
		def, ok := TableSQL(name)
		if !ok {
			t.Fatalf("no schema for catalog table %s", name)
		}
		idx := strings.Index(sql, def)
		if idx < 0 {
			t.Fatalf("definition for %s not in AllSQL", name)
		}
		if idx < prev {
			t.Fatalf("%s out of catalog order", name)
		}
		prev = idx
	}
}
