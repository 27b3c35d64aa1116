// Package dialect isolates the per-backend differences the engine needs:
// identifier quoting, placeholder style, physical column types, enum DDL,
// drop semantics and live-schema introspection.
package dialect

import (
	"context"
	"fmt"
	"strings"

	"migratekit/internal/dbexec"
	"migratekit/internal/schema"
)

// Dialect captures the capabilities of one database backend.
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	QuoteLiteral(value string) string
	Placeholder(n int) string

	// ColumnType maps a logical column type ("text", "integer", "uuid", an
	// enum name, ...) to the backend's physical type.
	ColumnType(logical string, enums map[string][]string) string
	// CurrentTimestamp is the expression the "now" default sentinel lowers to.
	CurrentTimestamp() string

	// CreateEnumStatements renders DDL for a new enum, or nothing for
	// backends without enum types.
	CreateEnumStatements(name string, values []string) []string
	// AlterEnumStatements renders DDL moving an enum from old to new values.
	AlterEnumStatements(name string, old, values []string) []string
	// AlterColumnTypeStatements renders DDL changing a column's type.
	AlterColumnTypeStatements(table, column string, col schema.Column, enums map[string][]string) []string

	DropTableStatement(table string) string
	DropIndexStatement(table, index string) string

	// CreateHistoryTableSQL renders the idempotent DDL for the migration
	// history table.
	CreateHistoryTableSQL(table string) string

	// ListUserTables returns every user table in the target database, sorted.
	// Callers filter out internal tables such as the history table.
	ListUserTables(ctx context.Context, q dbexec.Querier) ([]string, error)
	// Introspect reads the live database's structure back into a snapshot
	// with logical column types, for drift auditing.
	Introspect(ctx context.Context, q dbexec.Querier) (schema.Snapshot, error)
}

// New builds a dialect by name. "d1" is the SQLite dialect; Cloudflare D1
// speaks SQLite's DDL surface.
func New(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres":
		return Postgres{}, nil
	case "sqlite", "d1":
		return SQLite{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %s", name)
	}
}

// rowString reads a column from a row record, tolerating drivers that report
// information_schema column names in upper case.
func rowString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok {
		v = row[strings.ToUpper(key)]
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func rowInt(row map[string]any, key string) int64 {
	v, ok := row[key]
	if !ok {
		v = row[strings.ToUpper(key)]
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		var out int64
		fmt.Sscanf(string(n), "%d", &out)
		return out
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
