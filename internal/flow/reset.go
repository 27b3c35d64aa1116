package flow

import (
	"context"
	"fmt"
)

// ResetResult reports what reset dropped and re-applied.
type ResetResult struct {
	Dropped []string
	Applied []string
}

// Reset drops every non-internal table (the history table stays, its rows are
// cleared) and re-runs the full migration file set from scratch. Postgres
// drops cascade; SQLite and MySQL drop plain.
func (e *Engine) Reset(ctx context.Context) (*ResetResult, error) {
	log := e.flowLogger("reset")

	if err := e.History.EnsureTable(ctx, e.DB); err != nil {
		return nil, err
	}

	tables, err := e.Dialect.ListUserTables(ctx, e.DB)
	if err != nil {
		return nil, err
	}

	res := &ResetResult{}
	for _, t := range tables {
		if t == e.History.TableName() {
			continue
		}
		if _, err := e.DB.Exec(ctx, e.Dialect.DropTableStatement(t)); err != nil {
			return res, fmt.Errorf("drop %s: %w", t, err)
		}
		res.Dropped = append(res.Dropped, t)
		log.Info("table dropped", "table", t)
	}

	if err := e.History.Clear(ctx, e.DB); err != nil {
		return res, fmt.Errorf("clear history: %w", err)
	}

	files, err := e.listMigrationFiles()
	if err != nil {
		return res, err
	}
	for _, f := range files {
		sqlText, err := e.readMigration(f)
		if err != nil {
			return res, err
		}
		if err := e.History.Apply(ctx, e.DB, f, sqlText); err != nil {
			return res, fmt.Errorf("re-apply %s: %w", f, err)
		}
		res.Applied = append(res.Applied, f)
		log.Info("migration re-applied", "file", f)
	}

	log.Info("reset finished", "dropped", len(res.Dropped), "applied", len(res.Applied))
	return res, nil
}
