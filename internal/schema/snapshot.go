package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultNow is the sentinel default value that lowers to the dialect's
// current-timestamp function instead of a literal.
const DefaultNow = "now"

// Snapshot is a complete, versioned description of a database schema at one
// point in time. It is a pure value: two snapshots with identical tables and
// enums are indistinguishable regardless of construction order.
type Snapshot struct {
	Version int                 `json:"version"`
	Tables  map[string]Table    `json:"tables"`
	Enums   map[string][]string `json:"enums,omitempty"`
}

// Table describes one table: its columns, indexes and foreign keys.
// Metadata is an opaque bag for dialect- or feature-specific extensions and is
// never interpreted by the diff engine.
type Table struct {
	Columns     map[string]Column `json:"columns"`
	Indexes     []Index           `json:"indexes,omitempty"`
	ForeignKeys []ForeignKey      `json:"foreignKeys,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Column describes a single column. Type is a logical type name such as
// "text", "integer" or "uuid"; dialects map it to physical storage.
// Sensitive and Hidden are visibility annotations only and do not affect DDL.
type Column struct {
	Type      string  `json:"type"`
	Nullable  bool    `json:"nullable,omitempty"`
	Primary   bool    `json:"primary,omitempty"`
	Unique    bool    `json:"unique,omitempty"`
	Default   *string `json:"default,omitempty"`
	Sensitive bool    `json:"sensitive,omitempty"`
	Hidden    bool    `json:"hidden,omitempty"`
}

// Index describes a (possibly unique) secondary index.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// ForeignKey describes a single-column reference to another table.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencesTable  string `json:"referencesTable"`
	ReferencesColumn string `json:"referencesColumn"`
}

// New returns an empty snapshot at the given version.
func New(version int) Snapshot {
	return Snapshot{Version: version, Tables: map[string]Table{}, Enums: map[string][]string{}}
}

// TableNames returns the snapshot's table names in sorted order. All code that
// walks a snapshot goes through sorted keys so that diff and SQL output stay
// byte-identical across runs.
func (s Snapshot) TableNames() []string {
	return sortedKeys(s.Tables)
}

// EnumNames returns the snapshot's enum names in sorted order.
func (s Snapshot) EnumNames() []string {
	return sortedKeys(s.Enums)
}

// ColumnNames returns the table's column names in sorted order.
func (t Table) ColumnNames() []string {
	return sortedKeys(t.Columns)
}

// Equal reports structural equality of two snapshots. Visibility annotations
// (Sensitive, Hidden) and table metadata participate; map construction order
// does not.
func (s Snapshot) Equal(other Snapshot) bool {
	if s.Version != other.Version {
		return false
	}
	if len(s.Tables) != len(other.Tables) {
		return false
	}
	for name, t := range s.Tables {
		o, ok := other.Tables[name]
		if !ok || !t.Equal(o) {
			return false
		}
	}
	if len(s.Enums) != len(other.Enums) {
		return false
	}
	for name, values := range s.Enums {
		o, ok := other.Enums[name]
		if !ok || !equalStrings(values, o) {
			return false
		}
	}
	return true
}

// Equal reports structural equality of two tables.
func (t Table) Equal(other Table) bool {
	if len(t.Columns) != len(other.Columns) {
		return false
	}
	for name, c := range t.Columns {
		o, ok := other.Columns[name]
		if !ok || !c.Equal(o) {
			return false
		}
	}
	if len(t.Indexes) != len(other.Indexes) {
		return false
	}
	for i := range t.Indexes {
		if !t.Indexes[i].Equal(other.Indexes[i]) {
			return false
		}
	}
	if len(t.ForeignKeys) != len(other.ForeignKeys) {
		return false
	}
	for i := range t.ForeignKeys {
		if t.ForeignKeys[i] != other.ForeignKeys[i] {
			return false
		}
	}
	if len(t.Metadata) != len(other.Metadata) {
		return false
	}
	for k, v := range t.Metadata {
		if other.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Equal reports whether two columns are identical, including defaults and
// visibility annotations.
func (c Column) Equal(other Column) bool {
	if c.Type != other.Type || c.Nullable != other.Nullable || c.Primary != other.Primary ||
		c.Unique != other.Unique || c.Sensitive != other.Sensitive || c.Hidden != other.Hidden {
		return false
	}
	return equalDefault(c.Default, other.Default)
}

// Equal reports whether two indexes are identical.
func (i Index) Equal(other Index) bool {
	return i.Name == other.Name && i.Unique == other.Unique && equalStrings(i.Columns, other.Columns)
}

// Encode serializes a snapshot to indented JSON, suitable for the stored
// snapshot file.
func Encode(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a snapshot from its JSON serialization.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if s.Tables == nil {
		s.Tables = map[string]Table{}
	}
	if s.Enums == nil {
		s.Enums = map[string][]string{}
	}
	return s, nil
}

func equalDefault(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
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

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
