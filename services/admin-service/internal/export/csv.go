package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxRowsPerTable caps a single table export.
const MaxRowsPerTable = 50000

// utf8BOM makes spreadsheet tools detect the encoding correctly.
const utf8BOM = "\ufeff"

// ResultSet is an ordered snapshot of a table query. Columns preserve
// the select order so the header matches what the store returned.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// EncodeCSV renders one table. The header comes from the columns of
// the fetched data, not from the schema catalog. An empty result set
// produces a two-line comment placeholder instead of a lone header.
func EncodeCSV(tableName string, rs ResultSet) []byte {
	var b strings.Builder
	b.WriteString(utf8BOM)
	writeBody(&b, tableName, rs)
	return []byte(b.String())
}

func writeBody(b *strings.Builder, tableName string, rs ResultSet) {
	if len(rs.Rows) == 0 {
		fmt.Fprintf(b, "# Table: %s\n", tableName)
		b.WriteString("# No data available\n")
		return
	}

	for i, col := range rs.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(encodeCell(col))
	}
	b.WriteByte('\n')

	for _, row := range rs.Rows {
		for i, v := range row {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(encodeCell(v))
		}
		b.WriteByte('\n')
	}
}

// encodeCell applies the field rules independently per cell: nil is an
// empty field, structured values become compact JSON and are always
// quoted, and any text containing a separator, quote or newline is
// quoted with internal quotes doubled.
func encodeCell(v any) string {
	if v == nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return quoteIfNeeded(t)
	case []byte:
		// pgx returns jsonb columns as raw bytes.
		return forceQuote(string(t))
	case json.RawMessage:
		return forceQuote(string(t))
	case time.Time:
		return quoteIfNeeded(t.UTC().Format(time.RFC3339))
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any:
		raw, err := json.Marshal(t)
		if err != nil {
			return forceQuote(fmt.Sprint(t))
		}
		return forceQuote(string(raw))
	default:
		if s, ok := v.(fmt.Stringer); ok {
			return quoteIfNeeded(s.String())
		}
		return quoteIfNeeded(fmt.Sprint(v))
	}
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\n\r") {
		return forceQuote(s)
	}
	return s
}

func forceQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// TableSection is one table's contribution to a bulk export.
type TableSection struct {
	Name string
	Data ResultSet
	Err  error
}

// EncodeBulkCSV concatenates per-table sections under labeled comment
// headers. A failing table records its error inline and the batch
// continues; the artifact closes with a summary comment.
func EncodeBulkCSV(sections []TableSection) []byte {
	var b strings.Builder
	b.WriteString(utf8BOM)

	exported := 0
	totalRows := 0
	for _, s := range sections {
		if s.Err != nil {
			fmt.Fprintf(&b, "# ========== TABLE: %s ==========\n", s.Name)
			fmt.Fprintf(&b, "# ERROR: %s\n\n", s.Err.Error())
			continue
		}
		fmt.Fprintf(&b, "# ========== TABLE: %s (%d records) ==========\n", s.Name, len(s.Data.Rows))
		writeBody(&b, s.Name, s.Data)
		b.WriteByte('\n')
		exported++
		totalRows += len(s.Data.Rows)
	}

	fmt.Fprintf(&b, "# Export complete: %d tables, %d total rows\n", exported, totalRows)
	return []byte(b.String())
}

// Filename names a single-table artifact, e.g. barbers_2026-03-10.csv.
func Filename(table string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", table, now.UTC().Format("2006-01-02"))
}

// BulkFilename names the combined artifact.
func BulkFilename(now time.Time) string {
	return fmt.Sprintf("barbersoft_export_%s.csv", now.UTC().Format("2006-01-02"))
}
