// Package sqlgen renders a change list into dialect-specific DDL. Statement
// order is fixed so earlier statements never reference objects a later
// statement creates: enums first, then table creation, then alterations on
// pre-existing tables, then removals.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"migratekit/internal/dialect"
	"migratekit/internal/diff"
	"migratekit/internal/schema"
)

// Generate renders the full migration SQL for a change list against the
// current snapshot. Identical inputs always produce byte-identical output;
// migration checksums depend on it. An empty change list yields an empty
// string, which callers treat as nothing to apply.
func Generate(d dialect.Dialect, changes []diff.Change, current schema.Snapshot) string {
	if len(changes) == 0 {
		return ""
	}

	var enums, creates, alters, drops []string

	// Index definitions replaced in this change set (same name removed and
	// re-added) are dropped inline before their new shape is created, so the
	// create never collides with the old definition.
	replacedIndexes := map[string]bool{}
	addedIndexes := map[string]bool{}
	for _, c := range changes {
		if c.Kind == diff.IndexAdded {
			addedIndexes[c.Index.Name] = true
		}
	}
	for _, c := range changes {
		if c.Kind == diff.IndexRemoved && addedIndexes[c.Index.Name] {
			replacedIndexes[c.Index.Name] = true
		}
	}

	for _, c := range changes {
		switch c.Kind {
		case diff.EnumAdded:
			enums = append(enums, d.CreateEnumStatements(c.Enum, c.EnumValues)...)
		case diff.EnumChanged:
			enums = append(enums, d.AlterEnumStatements(c.Enum, c.OldEnumValues, c.EnumValues)...)
		case diff.TableAdded:
			creates = append(creates, createTableStatements(d, c.Table, *c.TableDef, current.Enums)...)
		case diff.ColumnAdded:
			alters = append(alters, addColumnStatement(d, c.Table, c.Column, *c.ColumnDef, current.Enums))
		case diff.ColumnRenamed:
			// A rename suggestion is never applied as a rename: the new
			// column is added and the old one dropped.
			col := current.Tables[c.Table].Columns[c.NewColumn]
			alters = append(alters, addColumnStatement(d, c.Table, c.NewColumn, col, current.Enums))
			drops = append(drops, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(c.Table), d.QuoteIdent(c.OldColumn)))
		case diff.ColumnTypeChanged:
			col := current.Tables[c.Table].Columns[c.Column]
			alters = append(alters, d.AlterColumnTypeStatements(c.Table, c.Column, col, current.Enums)...)
		case diff.IndexAdded:
			if replacedIndexes[c.Index.Name] {
				alters = append(alters, d.DropIndexStatement(c.Table, c.Index.Name))
			}
			alters = append(alters, createIndexStatement(d, c.Table, *c.Index))
		case diff.IndexRemoved:
			if !replacedIndexes[c.Index.Name] {
				drops = append(drops, d.DropIndexStatement(c.Table, c.Index.Name))
			}
		case diff.ColumnRemoved:
			drops = append(drops, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(c.Table), d.QuoteIdent(c.Column)))
		case diff.TableRemoved:
			drops = append(drops, d.DropTableStatement(c.Table))
		}
	}

	var stmts []string
	stmts = append(stmts, enums...)
	stmts = append(stmts, creates...)
	stmts = append(stmts, alters...)
	stmts = append(stmts, drops...)
	if len(stmts) == 0 {
		return ""
	}
	return strings.Join(stmts, ";\n\n") + ";\n"
}

func createTableStatements(d dialect.Dialect, name string, table schema.Table, enums map[string][]string) []string {
	var defs []string
	for _, col := range table.ColumnNames() {
		defs = append(defs, "\t"+columnDef(d, col, table.Columns[col], enums))
	}
	for _, fk := range table.ForeignKeys {
		defs = append(defs, fmt.Sprintf("\tFOREIGN KEY (%s) REFERENCES %s(%s)",
			d.QuoteIdent(fk.Column), d.QuoteIdent(fk.ReferencesTable), d.QuoteIdent(fk.ReferencesColumn)))
	}

	out := []string{fmt.Sprintf("CREATE TABLE %s (\n%s\n)", d.QuoteIdent(name), strings.Join(defs, ",\n"))}
	for _, idx := range table.Indexes {
		out = append(out, createIndexStatement(d, name, idx))
	}
	return out
}

func columnDef(d dialect.Dialect, name string, col schema.Column, enums map[string][]string) string {
	parts := []string{d.QuoteIdent(name), d.ColumnType(col.Type, enums)}
	if col.Primary {
		parts = append(parts, "PRIMARY KEY")
	} else {
		if !col.Nullable {
			parts = append(parts, "NOT NULL")
		}
		if col.Unique {
			parts = append(parts, "UNIQUE")
		}
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT", defaultExpr(d, *col.Default))
	}
	return strings.Join(parts, " ")
}

func addColumnStatement(d dialect.Dialect, table, column string, col schema.Column, enums map[string][]string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(table), columnDef(d, column, col, enums))
}

func createIndexStatement(d dialect.Dialect, table string, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = d.QuoteIdent(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.QuoteIdent(idx.Name), d.QuoteIdent(table), strings.Join(cols, ", "))
}

// defaultExpr lowers a default value. The "now" sentinel becomes the
// dialect's current-timestamp expression; numeric and boolean literals pass
// through; anything else is dialect-escaped as a string literal.
func defaultExpr(d dialect.Dialect, value string) string {
	if value == schema.DefaultNow {
		return d.CurrentTimestamp()
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return value
	}
	if value == "true" || value == "false" {
		return value
	}
	return d.QuoteLiteral(value)
}
