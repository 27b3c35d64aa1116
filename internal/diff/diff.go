// Package diff computes the ordered set of structural changes between two
// schema snapshots, including rename suggestions for single add/remove column
// pairs of identical type.
package diff

import (
	"fmt"
	"strings"

	"migratekit/internal/schema"
)

// Kind tags one variant of a schema change.
type Kind string

const (
	TableAdded        Kind = "table_added"
	TableRemoved      Kind = "table_removed"
	ColumnAdded       Kind = "column_added"
	ColumnRemoved     Kind = "column_removed"
	ColumnRenamed     Kind = "column_renamed"
	ColumnTypeChanged Kind = "column_type_changed"
	IndexAdded        Kind = "index_added"
	IndexRemoved      Kind = "index_removed"
	EnumAdded         Kind = "enum_added"
	EnumChanged       Kind = "enum_changed"
)

// Change is one structural difference. Only the fields relevant to its Kind
// are populated; TableDef/ColumnDef carry enough data to render DDL.
type Change struct {
	Kind  Kind   `json:"kind"`
	Table string `json:"table,omitempty"`

	Column    string `json:"column,omitempty"`
	OldColumn string `json:"oldColumn,omitempty"`
	NewColumn string `json:"newColumn,omitempty"`

	// Confidence scores a column_renamed suggestion in (0,1]. Renames are
	// never applied as renames; the score is surfaced for human review.
	Confidence float64 `json:"confidence,omitempty"`

	TableDef  *schema.Table  `json:"tableDef,omitempty"`
	ColumnDef *schema.Column `json:"columnDef,omitempty"`
	Index     *schema.Index  `json:"index,omitempty"`

	OldType string `json:"oldType,omitempty"`
	NewType string `json:"newType,omitempty"`

	Enum          string   `json:"enum,omitempty"`
	EnumValues    []string `json:"enumValues,omitempty"`
	OldEnumValues []string `json:"oldEnumValues,omitempty"`
}

// Diff is the ordered change list between two snapshots. The order is
// deterministic and meant for human-readable summaries; SQL execution order is
// decided separately by the generator.
type Diff struct {
	Changes []Change
}

// HasChanges reports whether the diff contains any change.
func (d Diff) HasChanges() bool { return len(d.Changes) > 0 }

// Compute walks previous and current and emits changes in a fixed order:
// enums, added tables, removed tables, then per-table column and index
// changes for tables present in both. Identical snapshots yield an empty
// list.
func Compute(previous, current schema.Snapshot) Diff {
	var out []Change

	out = append(out, diffEnums(previous, current)...)

	prevTables := previous.TableNames()
	curTables := current.TableNames()

	for _, name := range curTables {
		if _, ok := previous.Tables[name]; ok {
			continue
		}
		t := current.Tables[name]
		out = append(out, Change{Kind: TableAdded, Table: name, TableDef: &t})
	}
	for _, name := range prevTables {
		if _, ok := current.Tables[name]; !ok {
			out = append(out, Change{Kind: TableRemoved, Table: name})
		}
	}

	for _, name := range curTables {
		prevTable, ok := previous.Tables[name]
		if !ok {
			continue
		}
		out = append(out, diffTable(name, prevTable, current.Tables[name])...)
	}

	return Diff{Changes: out}
}

func diffEnums(previous, current schema.Snapshot) []Change {
	var out []Change
	for _, name := range current.EnumNames() {
		values := current.Enums[name]
		old, ok := previous.Enums[name]
		if !ok {
			out = append(out, Change{Kind: EnumAdded, Enum: name, EnumValues: values})
			continue
		}
		if !stringsEqual(old, values) {
			out = append(out, Change{Kind: EnumChanged, Enum: name, EnumValues: values, OldEnumValues: old})
		}
	}
	return out
}

func diffTable(name string, previous, current schema.Table) []Change {
	var added, removed []string
	for _, col := range current.ColumnNames() {
		if _, ok := previous.Columns[col]; !ok {
			added = append(added, col)
		}
	}
	for _, col := range previous.ColumnNames() {
		if _, ok := current.Columns[col]; !ok {
			removed = append(removed, col)
		}
	}

	var out []Change

	// Exactly one removed and one added column of identical type is treated
	// as a rename suggestion. Type mismatches stay separate add/remove pairs.
	if len(added) == 1 && len(removed) == 1 &&
		current.Columns[added[0]].Type == previous.Columns[removed[0]].Type {
		out = append(out, Change{
			Kind:       ColumnRenamed,
			Table:      name,
			OldColumn:  removed[0],
			NewColumn:  added[0],
			Confidence: renameConfidence(removed[0], added[0]),
		})
		added, removed = nil, nil
	}

	for _, col := range added {
		c := current.Columns[col]
		out = append(out, Change{Kind: ColumnAdded, Table: name, Column: col, ColumnDef: &c})
	}
	for _, col := range removed {
		out = append(out, Change{Kind: ColumnRemoved, Table: name, Column: col})
	}

	for _, col := range current.ColumnNames() {
		prevCol, ok := previous.Columns[col]
		if !ok {
			continue
		}
		curCol := current.Columns[col]
		if prevCol.Type != curCol.Type {
			out = append(out, Change{
				Kind:    ColumnTypeChanged,
				Table:   name,
				Column:  col,
				OldType: prevCol.Type,
				NewType: curCol.Type,
			})
		}
	}

	out = append(out, diffIndexes(name, previous.Indexes, current.Indexes)...)
	return out
}

func diffIndexes(table string, previous, current []schema.Index) []Change {
	prevByName := make(map[string]schema.Index, len(previous))
	for _, idx := range previous {
		prevByName[idx.Name] = idx
	}
	curByName := make(map[string]schema.Index, len(current))
	for _, idx := range current {
		curByName[idx.Name] = idx
	}

	var out []Change
	for _, idx := range current {
		old, ok := prevByName[idx.Name]
		if ok && old.Equal(idx) {
			continue
		}
		if ok {
			// Shape changed: drop the old definition, create the new one.
			out = append(out, Change{Kind: IndexRemoved, Table: table, Index: &old})
		}
		i := idx
		out = append(out, Change{Kind: IndexAdded, Table: table, Index: &i})
	}
	for _, idx := range previous {
		if _, ok := curByName[idx.Name]; !ok {
			i := idx
			out = append(out, Change{Kind: IndexRemoved, Table: table, Index: &i})
		}
	}
	return out
}

// renameConfidence scores how likely removed -> added is a rename. The type
// match already gates the suggestion, so the floor is 0.5; name similarity
// (Levenshtein) contributes the rest. A lone candidate is always surfaced,
// even at the floor.
func renameConfidence(oldName, newName string) float64 {
	longest := len(oldName)
	if len(newName) > longest {
		longest = len(newName)
	}
	if longest == 0 {
		return 0.5
	}
	d := levenshtein(oldName, newName)
	similarity := 1.0 - float64(d)/float64(longest)
	return 0.5 + 0.5*similarity
}

func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Describe returns a human-readable summary of the diff, one line per change.
func Describe(d Diff) string {
	if !d.HasChanges() {
		return "schemas match"
	}
	lines := make([]string, 0, len(d.Changes))
	for _, c := range d.Changes {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}

// String renders one change for logs and summaries.
func (c Change) String() string {
	switch c.Kind {
	case TableAdded:
		return fmt.Sprintf("add table %s", c.Table)
	case TableRemoved:
		return fmt.Sprintf("remove table %s", c.Table)
	case ColumnAdded:
		return fmt.Sprintf("add column %s.%s", c.Table, c.Column)
	case ColumnRemoved:
		return fmt.Sprintf("remove column %s.%s", c.Table, c.Column)
	case ColumnRenamed:
		return fmt.Sprintf("rename column %s.%s -> %s (confidence %.2f)", c.Table, c.OldColumn, c.NewColumn, c.Confidence)
	case ColumnTypeChanged:
		return fmt.Sprintf("change column %s.%s type %s -> %s", c.Table, c.Column, c.OldType, c.NewType)
	case IndexAdded:
		return fmt.Sprintf("add index %s on %s", c.Index.Name, c.Table)
	case IndexRemoved:
		return fmt.Sprintf("remove index %s on %s", c.Index.Name, c.Table)
	case EnumAdded:
		return fmt.Sprintf("add enum %s (%s)", c.Enum, strings.Join(c.EnumValues, ", "))
	case EnumChanged:
		return fmt.Sprintf("change enum %s (%s)", c.Enum, strings.Join(c.EnumValues, ", "))
	default:
		return string(c.Kind)
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
