package postgres

import (
	"fmt"

	"github.com/guillermoBallester/dqmon/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// collectRows drains pgx.Rows into positional rows, converting NUMERIC to
// float64 so extractors see plain numbers.
func collectRows(rows pgx.Rows) ([]string, []domain.Row, error) {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, fd := range fields {
		cols[i] = fd.Name
	}

	result := []domain.Row{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(domain.Row, len(vals))
		for i, v := range vals {
			row[i] = normalize(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}
	return cols, result, nil
}

func normalize(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}
