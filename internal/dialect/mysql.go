package dialect

import (
	"context"
	"fmt"
	"strings"

	"migratekit/internal/dbexec"
	"migratekit/internal/schema"
)

// MySQL implements the Dialect interface for MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (MySQL) QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func (MySQL) Placeholder(int) string { return "?" }

var mysqlTypes = map[string]string{
	"text":      "varchar(255)",
	"integer":   "int",
	"bigint":    "bigint",
	"real":      "double",
	"boolean":   "tinyint(1)",
	"uuid":      "char(36)",
	"timestamp": "datetime",
	"json":      "json",
	"blob":      "blob",
}

func (m MySQL) ColumnType(logical string, enums map[string][]string) string {
	if values, ok := enums[logical]; ok {
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = m.QuoteLiteral(v)
		}
		return fmt.Sprintf("enum(%s)", strings.Join(quoted, ", "))
	}
	if physical, ok := mysqlTypes[logical]; ok {
		return physical
	}
	return logical
}

func (MySQL) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }

// Enum values are inlined in the column type; there is no standalone type to
// create or alter.
func (MySQL) CreateEnumStatements(string, []string) []string { return nil }

func (MySQL) AlterEnumStatements(string, []string, []string) []string { return nil }

func (m MySQL) AlterColumnTypeStatements(table, column string, col schema.Column, enums map[string][]string) []string {
	def := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", m.QuoteIdent(table), m.QuoteIdent(column), m.ColumnType(col.Type, enums))
	if !col.Nullable {
		def += " NOT NULL"
	}
	return []string{def}
}

func (m MySQL) DropTableStatement(table string) string {
	return fmt.Sprintf("DROP TABLE %s", m.QuoteIdent(table))
}

func (m MySQL) DropIndexStatement(table, index string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", m.QuoteIdent(index), m.QuoteIdent(table))
}

func (m MySQL) CreateHistoryTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name varchar(255) PRIMARY KEY,
	checksum varchar(128) NOT NULL,
	applied_at datetime NOT NULL
) ENGINE=InnoDB`, m.QuoteIdent(table))
}

func (MySQL) ListUserTables(ctx context.Context, q dbexec.Querier) ([]string, error) {
	res, err := q.Query(ctx, `
SELECT table_name AS table_name
FROM information_schema.tables
WHERE table_schema=DATABASE() AND table_type='BASE TABLE'
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

var mysqlLogical = map[string]string{
	"varchar":   "text",
	"text":      "text",
	"int":       "integer",
	"bigint":    "bigint",
	"double":    "real",
	"float":     "real",
	"tinyint":   "boolean",
	"char":      "uuid",
	"datetime":  "timestamp",
	"timestamp": "timestamp",
	"json":      "json",
	"blob":      "blob",
}

func (m MySQL) Introspect(ctx context.Context, q dbexec.Querier) (schema.Snapshot, error) {
	snap := schema.New(1)

	tables, err := m.ListUserTables(ctx, q)
	if err != nil {
		return snap, err
	}
	for _, name := range tables {
		snap.Tables[name] = schema.Table{Columns: map[string]schema.Column{}}
	}

	res, err := q.Query(ctx, `
SELECT table_name AS table_name, column_name AS column_name, data_type AS data_type, is_nullable AS is_nullable, column_key AS column_key
FROM information_schema.columns
WHERE table_schema=DATABASE()
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
		logical, ok := mysqlLogical[physical]
		if !ok {
			logical = physical
		}
		t.Columns[rowString(row, "column_name")] = schema.Column{
			Type:     logical,
			Nullable: strings.EqualFold(rowString(row, "is_nullable"), "YES"),
			Primary:  strings.EqualFold(rowString(row, "column_key"), "PRI"),
		}
		snap.Tables[tbl] = t
	}
	return snap, nil
}
