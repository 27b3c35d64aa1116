package dialect

import (
	"context"
	"fmt"
	"strings"

	"migratekit/internal/dbexec"
	"migratekit/internal/schema"
)

// SQLite implements the Dialect interface for SQLite and SQLite-compatible
// edge databases such as Cloudflare D1.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func (SQLite) Placeholder(int) string { return "?" }

var sqliteTypes = map[string]string{
	"text":      "text",
	"integer":   "integer",
	"bigint":    "integer",
	"real":      "real",
	"boolean":   "integer",
	"uuid":      "text",
	"timestamp": "text",
	"json":      "text",
	"blob":      "blob",
}

func (SQLite) ColumnType(logical string, enums map[string][]string) string {
	if _, ok := enums[logical]; ok {
		// SQLite has no enum types; enum columns are stored as text.
		return "text"
	}
	if physical, ok := sqliteTypes[logical]; ok {
		return physical
	}
	return logical
}

func (SQLite) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }

func (SQLite) CreateEnumStatements(string, []string) []string { return nil }

func (SQLite) AlterEnumStatements(string, []string, []string) []string { return nil }

func (s SQLite) AlterColumnTypeStatements(table, column string, col schema.Column, enums map[string][]string) []string {
	// SQLite cannot change a column type in place; the column is dropped and
	// re-added with the new type. Existing values in that column are lost.
	rebuilt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", s.QuoteIdent(table), s.QuoteIdent(column), s.ColumnType(col.Type, enums))
	if !col.Nullable && col.Default != nil {
		def := *col.Default
		if def == schema.DefaultNow {
			rebuilt += " DEFAULT " + s.CurrentTimestamp()
		} else {
			rebuilt += " DEFAULT " + s.QuoteLiteral(def)
		}
	}
	return []string{
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", s.QuoteIdent(table), s.QuoteIdent(column)),
		rebuilt,
	}
}

func (s SQLite) DropTableStatement(table string) string {
	return fmt.Sprintf("DROP TABLE %s", s.QuoteIdent(table))
}

func (s SQLite) DropIndexStatement(_, index string) string {
	return fmt.Sprintf("DROP INDEX %s", s.QuoteIdent(index))
}

func (s SQLite) CreateHistoryTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name text PRIMARY KEY,
	checksum text NOT NULL,
	applied_at text NOT NULL
)`, s.QuoteIdent(table))
}

func (SQLite) ListUserTables(ctx context.Context, q dbexec.Querier) ([]string, error) {
	res, err := q.Query(ctx, `
SELECT name FROM sqlite_master
WHERE type='table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range res.Rows {
		out = append(out, rowString(row, "name"))
	}
	return out, nil
}

var sqliteLogical = map[string]string{
	"text":    "text",
	"integer": "integer",
	"real":    "real",
	"blob":    "blob",
}

func (s SQLite) Introspect(ctx context.Context, q dbexec.Querier) (schema.Snapshot, error) {
	snap := schema.New(1)

	tables, err := s.ListUserTables(ctx, q)
	if err != nil {
		return snap, err
	}
	for _, name := range tables {
		info, err := q.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.QuoteIdent(name)))
		if err != nil {
			return snap, fmt.Errorf("table_info %s: %w", name, err)
		}
		table := schema.Table{Columns: map[string]schema.Column{}}
		for _, row := range info.Rows {
			physical := strings.ToLower(rowString(row, "type"))
			logical, ok := sqliteLogical[physical]
			if !ok {
				logical = physical
			}
			table.Columns[rowString(row, "name")] = schema.Column{
				Type:     logical,
				Nullable: rowInt(row, "notnull") == 0 && rowInt(row, "pk") == 0,
				Primary:  rowInt(row, "pk") > 0,
			}
		}
		snap.Tables[name] = table
	}
	return snap, nil
}
