package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/barbersoft/backend/libs/db"
)

var ErrUnknownTable = errors.New("table not in export catalog")

type Exporter struct {
	pool *db.Pool
}

func NewExporter(pool *db.Pool) *Exporter {
	return &Exporter{pool: pool}
}

// FetchTable reads up to MaxRowsPerTable rows. Only catalog names are
// accepted since the table name is interpolated into the query.
func (e *Exporter) FetchTable(ctx context.Context, name string) (ResultSet, error) {
	if !IsExportable(name) {
		return ResultSet{}, ErrUnknownTable
	}

	rows, err := e.pool.Query(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, name, MaxRowsPerTable))
	if err != nil {
		return ResultSet{}, err
	}
	defer rows.Close()

	var rs ResultSet
	for _, fd := range rows.FieldDescriptions() {
		rs.Columns = append(rs.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ResultSet{}, err
		}
		rs.Rows = append(rs.Rows, values)
	}
	if rows.Err() != nil {
		return ResultSet{}, rows.Err()
	}
	return rs, nil
}

// FetchTables runs per-table fetches sequentially: bounded load on the
// store, and a failing table only poisons its own section.
func (e *Exporter) FetchTables(ctx context.Context, names []string) []TableSection {
	sections := make([]TableSection, 0, len(names))
	for _, name := range names {
		rs, err := e.FetchTable(ctx, name)
		sections = append(sections, TableSection{Name: name, Data: rs, Err: err})
	}
	return sections
}

// FetchAll exports the whole catalog in declaration order.
func (e *Exporter) FetchAll(ctx context.Context) []TableSection {
	return e.FetchTables(ctx, TableNames())
}
