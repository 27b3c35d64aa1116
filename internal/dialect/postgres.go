package dialect

import (
	"context"
	"fmt"
	"strings"

	"migratekit/internal/dbexec"
	"migratekit/internal/schema"
)

// Postgres implements the Dialect interface for PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

var postgresTypes = map[string]string{
	"text":      "text",
	"integer":   "integer",
	"bigint":    "bigint",
	"real":      "double precision",
	"boolean":   "boolean",
	"uuid":      "uuid",
	"timestamp": "timestamptz",
	"json":      "jsonb",
	"blob":      "bytea",
}

func (p Postgres) ColumnType(logical string, enums map[string][]string) string {
	if _, ok := enums[logical]; ok {
		return p.QuoteIdent(logical)
	}
	if physical, ok := postgresTypes[logical]; ok {
		return physical
	}
	return logical
}

func (Postgres) CurrentTimestamp() string { return "now()" }

func (p Postgres) CreateEnumStatements(name string, values []string) []string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = p.QuoteLiteral(v)
	}
	return []string{fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", p.QuoteIdent(name), strings.Join(quoted, ", "))}
}

func (p Postgres) AlterEnumStatements(name string, old, values []string) []string {
	// Postgres enums only grow; removed or reordered values cannot be
	// expressed without rewriting dependent columns.
	existing := make(map[string]struct{}, len(old))
	for _, v := range old {
		existing[v] = struct{}{}
	}
	var out []string
	for _, v := range values {
		if _, ok := existing[v]; !ok {
			out = append(out, fmt.Sprintf("ALTER TYPE %s ADD VALUE %s", p.QuoteIdent(name), p.QuoteLiteral(v)))
		}
	}
	return out
}

func (p Postgres) AlterColumnTypeStatements(table, column string, col schema.Column, enums map[string][]string) []string {
	return []string{fmt.Sprintf(
		"ALTER TABLE %s ALTER COLUMN %s TYPE %s",
		p.QuoteIdent(table), p.QuoteIdent(column), p.ColumnType(col.Type, enums),
	)}
}

func (p Postgres) DropTableStatement(table string) string {
	return fmt.Sprintf("DROP TABLE %s CASCADE", p.QuoteIdent(table))
}

func (p Postgres) DropIndexStatement(_, index string) string {
	return fmt.Sprintf("DROP INDEX %s", p.QuoteIdent(index))
}

func (p Postgres) CreateHistoryTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name text PRIMARY KEY,
	checksum text NOT NULL,
	applied_at timestamptz NOT NULL
)`, p.QuoteIdent(table))
}

func (Postgres) ListUserTables(ctx context.Context, q dbexec.Querier) ([]string, error) {
	res, err := q.Query(ctx, `
SELECT table_name AS table_name
FROM information_schema.tables
WHERE table_schema='public' AND table_type='BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range res.Rows {
		out = append(out, rowString(row, "table_name"))
	}
	return out, nil
}

var postgresLogical = map[string]string{
	"text":                        "text",
	"character varying":           "text",
	"integer":                     "integer",
	"bigint":                      "bigint",
	"double precision":            "real",
	"numeric":                     "real",
	"boolean":                     "boolean",
	"uuid":                        "uuid",
	"timestamp with time zone":    "timestamp",
	"timestamp without time zone": "timestamp",
	"jsonb":                       "json",
	"json":                        "json",
	"bytea":                       "blob",
}

func (p Postgres) Introspect(ctx context.Context, q dbexec.Querier) (schema.Snapshot, error) {
	snap := schema.New(1)

	tables, err := p.ListUserTables(ctx, q)
	if err != nil {
		return snap, err
	}
	for _, name := range tables {
		snap.Tables[name] = schema.Table{Columns: map[string]schema.Column{}}
	}

	res, err := q.Query(ctx, `
SELECT table_name AS table_name, column_name AS column_name, data_type AS data_type, is_nullable AS is_nullable
FROM information_schema.columns
WHERE table_schema='public'
ORDER BY table_name, column_name`)
	if err != nil {
		return snap, err
	}
	for _, row := range res.Rows {
		tbl := rowString(row, "table_name")
		t, ok := snap.Tables[tbl]
		if !ok {
			continue
		}
		physical := strings.ToLower(rowString(row, "data_type"))
		logical, ok := postgresLogical[physical]
		if !ok {
			logical = physical
		}
		t.Columns[rowString(row, "column_name")] = schema.Column{
			Type:     logical,
			Nullable: strings.EqualFold(rowString(row, "is_nullable"), "YES"),
		}
		snap.Tables[tbl] = t
	}

	pk, err := q.Query(ctx, `
SELECT tc.table_name AS table_name, kcu.column_name AS column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
 AND tc.table_name = kcu.table_name
WHERE tc.table_schema='public' AND tc.constraint_type='PRIMARY KEY'
ORDER BY kcu.ordinal_position`)
	if err != nil {
		return snap, err
	}
	for _, row := range pk.Rows {
		tbl := rowString(row, "table_name")
		t, ok := snap.Tables[tbl]
		if !ok {
			continue
		}
		col := rowString(row, "column_name")
		if c, ok := t.Columns[col]; ok {
			c.Primary = true
			t.Columns[col] = c
		}
		snap.Tables[tbl] = t
	}
	return snap, nil
}
