package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// RequiredColumn defines a required column for a table.
type RequiredColumn struct {
	Table  string
	Column string
}

// DefaultRequiredColumns are the columns the escalation monitor and assignment
// claim depend on. Older databases missing them must be migrated before start.
var DefaultRequiredColumns = []RequiredColumn{
	{Table: "complaints", Column: "escalation_cycle"},
	{Table: "complaints", Column: "version"},
	{Table: "employees", Column: "version"},
	{Table: "escalation_records", Column: "escalation_cycle"},
	{Table: "notifications", Column: "next_attempt_at"},
}

// ValidateRequiredColumns returns an error listing every missing column.
func ValidateRequiredColumns(ctx context.Context, db *sql.DB, dialect string, required []RequiredColumn) error {
	if len(required) == 0 {
		required = DefaultRequiredColumns
	}
	var missing []string
	for _, rc := range required {
		exists, err := columnExists(ctx, db, dialect, rc.Table, rc.Column)
		if err != nil {
			return fmt.Errorf("failed to check column %s.%s: %w", rc.Table, rc.Column, err)
		}
		if !exists {
			missing = append(missing, rc.Table+"."+rc.Column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns (run migrations to fix): %s", strings.Join(missing, ", "))
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, dialect, table, column string) (bool, error) {
	var query string
	switch dialect {
	case DialectSQLite:
		query = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	default:
		query = `SELECT COUNT(*) FROM information_schema.COLUMNS
		 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`
	}
	var count int
	if err := db.QueryRowContext(ctx, query, table, column).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
