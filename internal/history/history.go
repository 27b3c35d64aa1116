// Package history keeps the durable record of which migrations have executed
// against a specific database, with checksum-verified, idempotent application.
package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"migratekit/internal/dbexec"
	"migratekit/internal/dialect"
)

// DefaultTable is the history table maintained inside the target database.
const DefaultTable = "migratekit_migrations"

const timeFormat = "2006-01-02 15:04:05"

// Applied is one recorded migration. Rows are never mutated and never deleted
// except by an explicit reset.
type Applied struct {
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Drift reports an already-applied migration whose file content no longer
// matches the recorded checksum. Drift is surfaced, never auto-corrected.
type Drift struct {
	Name            string
	FileChecksum    string
	AppliedChecksum string
}

// Runner executes and records migrations through an injected Querier.
type Runner struct {
	dialect dialect.Dialect
	table   string
}

// New returns a runner recording into the default history table.
func New(d dialect.Dialect) *Runner {
	return &Runner{dialect: d, table: DefaultTable}
}

// TableName returns the history table name, so callers can exclude it from
// user-table operations.
func (r *Runner) TableName() string { return r.table }

// EnsureTable idempotently creates the history table.
func (r *Runner) EnsureTable(ctx context.Context, q dbexec.Querier) error {
	if _, err := q.Exec(ctx, r.dialect.CreateHistoryTableSQL(r.table)); err != nil {
		return fmt.Errorf("ensure history table: %w", err)
	}
	return nil
}

// TableExists reports whether the history table is present, without creating
// it. Dry runs use this to classify pending migrations with zero writes.
func (r *Runner) TableExists(ctx context.Context, q dbexec.Querier) (bool, error) {
	tables, err := r.dialect.ListUserTables(ctx, q)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == r.table {
			return true, nil
		}
	}
	return false, nil
}

// Applied returns every recorded migration, ordered by name (which is the
// numeric file order for NNNN_ prefixed names).
func (r *Runner) Applied(ctx context.Context, q dbexec.Querier) ([]Applied, error) {
	stmt := fmt.Sprintf(`SELECT name, checksum, applied_at FROM %s ORDER BY name`, r.dialect.QuoteIdent(r.table))
	res, err := q.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	out := make([]Applied, 0, len(res.Rows))
	for _, row := range res.Rows {
		out = append(out, Applied{
			Name:      asString(row["name"]),
			Checksum:  asString(row["checksum"]),
			AppliedAt: asTime(row["applied_at"]),
		})
	}
	return out, nil
}

// Apply executes a migration's SQL statement by statement, then records it.
// The statements are not wrapped in a transaction; a failure leaves the
// migration unrecorded so the error surfaces on the next run.
func (r *Runner) Apply(ctx context.Context, q dbexec.Querier, name, sqlText string) error {
	for _, stmt := range dbexec.SplitStatements(sqlText) {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute %s: %w", name, err)
		}
	}
	return r.Record(ctx, q, name, sqlText)
}

// Record inserts a history row without executing the migration's SQL. This is
// the baseline path for adopting databases whose tables already exist.
func (r *Runner) Record(ctx context.Context, q dbexec.Querier, name, sqlText string) error {
	stmt := fmt.Sprintf(`INSERT INTO %s (name, checksum, applied_at) VALUES (%s, %s, %s)`,
		r.dialect.QuoteIdent(r.table),
		r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3))
	_, err := q.Exec(ctx, stmt, name, Checksum(sqlText), time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	return nil
}

// Clear deletes every history row. Only reset calls this.
func (r *Runner) Clear(ctx context.Context, q dbexec.Querier) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, r.dialect.QuoteIdent(r.table)))
	return err
}

// Pending returns the files whose name is not yet recorded, preserving file
// order (numeric-prefix order).
func Pending(files []string, applied []Applied) []string {
	seen := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		seen[a.Name] = struct{}{}
	}
	var out []string
	for _, f := range files {
		if _, ok := seen[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Checksum returns the SHA-256 hex digest of a migration's SQL text.
func Checksum(sqlText string) string {
	h := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(h[:])
}

// VerifyChecksums compares on-disk file contents against recorded checksums
// and reports every mismatch, sorted by name.
func VerifyChecksums(fileSQL map[string]string, applied []Applied) []Drift {
	var out []Drift
	for _, a := range applied {
		sqlText, ok := fileSQL[a.Name]
		if !ok {
			continue
		}
		if sum := Checksum(sqlText); sum != a.Checksum {
			out = append(out, Drift{Name: a.Name, FileChecksum: sum, AppliedChecksum: a.Checksum})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(timeFormat, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	case []byte:
		return asTime(string(t))
	}
	return time.Time{}
}
