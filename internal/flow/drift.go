package flow

import (
	"context"

	"migratekit/internal/schema"
)

// ColumnRef names one column of one table.
type ColumnRef struct {
	Table  string
	Column string
}

// TypeMismatch reports a column whose live type differs from the expected
// logical type.
type TypeMismatch struct {
	Table    string
	Column   string
	Expected string
	Actual   string
}

// DriftResult is a read-only audit of the live database against an expected
// snapshot. Nothing in it is ever applied.
type DriftResult struct {
	MissingTables  []string
	ExtraTables    []string
	MissingColumns []ColumnRef
	ExtraColumns   []ColumnRef
	TypeMismatches []TypeMismatch
}

// Clean reports whether the live database matches the expected snapshot.
func (r *DriftResult) Clean() bool {
	return len(r.MissingTables) == 0 && len(r.ExtraTables) == 0 &&
		len(r.MissingColumns) == 0 && len(r.ExtraColumns) == 0 &&
		len(r.TypeMismatches) == 0
}

// DetectSchemaDrift introspects the live database and compares it against the
// expected snapshot. The history table is excluded from the comparison.
func (e *Engine) DetectSchemaDrift(ctx context.Context, expected schema.Snapshot) (*DriftResult, error) {
	log := e.flowLogger("drift")

	actual, err := e.Dialect.Introspect(ctx, e.DB)
	if err != nil {
		return nil, err
	}
	delete(actual.Tables, e.History.TableName())

	res := &DriftResult{}

	for _, name := range expected.TableNames() {
		expTable := expected.Tables[name]
		actTable, ok := actual.Tables[name]
		if !ok {
			res.MissingTables = append(res.MissingTables, name)
			continue
		}
		for _, col := range expTable.ColumnNames() {
			expCol := expTable.Columns[col]
			actCol, ok := actTable.Columns[col]
			if !ok {
				res.MissingColumns = append(res.MissingColumns, ColumnRef{Table: name, Column: col})
				continue
			}
			if expCol.Type != actCol.Type {
				res.TypeMismatches = append(res.TypeMismatches, TypeMismatch{
					Table:    name,
					Column:   col,
					Expected: expCol.Type,
					Actual:   actCol.Type,
				})
			}
		}
		for _, col := range actTable.ColumnNames() {
			if _, ok := expTable.Columns[col]; !ok {
				res.ExtraColumns = append(res.ExtraColumns, ColumnRef{Table: name, Column: col})
			}
		}
	}
	for _, name := range actual.TableNames() {
		if _, ok := expected.Tables[name]; !ok {
			res.ExtraTables = append(res.ExtraTables, name)
		}
	}

	log.Info("drift audit finished",
		"missing_tables", len(res.MissingTables),
		"extra_tables", len(res.ExtraTables),
		"type_mismatches", len(res.TypeMismatches),
	)
	return res, nil
}
