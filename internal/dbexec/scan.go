package dbexec

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// binaryTypes are database type names whose values stay []byte.
var binaryTypes = map[string]bool{
	"BINARY":     true,
	"VARBINARY":  true,
	"BLOB":       true,
	"TINYBLOB":   true,
	"MEDIUMBLOB": true,
	"LONGBLOB":   true,
	"BIT":        true,
	"GEOMETRY":   true,
	"BYTEA":      true,
}

// ScanMaps reads every remaining row into a column name to value map and
// closes rows. Byte slices from text columns become strings. Byte slices from
// binary columns (BLOB, VARBINARY, BYTEA and the like) are kept as []byte.
func ScanMaps(rows Rows) ([]map[string]any, error) {
	defer rows.Close()

	binary, err := binaryColumns(rows)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := sqlx.MapScan(rows, row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for col, v := range row {
			if b, ok := v.([]byte); ok && !binary[col] {
				row[col] = string(b)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func binaryColumns(rows Rows) (map[string]bool, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	binary := make(map[string]bool)
	for _, ct := range types {
		if binaryTypes[strings.ToUpper(ct.DatabaseTypeName())] {
			binary[ct.Name()] = true
		}
	}
	return binary, nil
}
