package flow

import (
	"context"
	"fmt"
	"sort"

	"migratekit/internal/dbexec"
	"migratekit/internal/diff"
	"migratekit/internal/schema"
	"migratekit/internal/sqlgen"
)

// PushOptions configures the direct-push flow.
type PushOptions struct {
	DryRun bool
}

// PushResult reports what push executed. An empty diff yields empty SQL and
// no affected tables, and nothing is executed.
type PushResult struct {
	SQL            string
	TablesAffected []string
}

// Push diffs the two snapshots and executes the resulting DDL immediately
// against the database. No migration file is written and no history row is
// recorded; push is for rapid local iteration, not tracked deployments.
func (e *Engine) Push(ctx context.Context, previous, current schema.Snapshot, opts PushOptions) (*PushResult, error) {
	log := e.flowLogger("push")

	d := diff.Compute(previous, current)
	if !d.HasChanges() {
		log.Info("schemas match, nothing to push")
		return &PushResult{SQL: "", TablesAffected: []string{}}, nil
	}

	sqlText := sqlgen.Generate(e.Dialect, d.Changes, current)
	res := &PushResult{SQL: sqlText, TablesAffected: affectedTables(d.Changes)}

	if opts.DryRun {
		log.Info("dry run, skipping execution", "tables", res.TablesAffected)
		return res, nil
	}

	for _, stmt := range dbexec.SplitStatements(sqlText) {
		if _, err := e.DB.Exec(ctx, stmt); err != nil {
			return res, fmt.Errorf("push: %w", err)
		}
	}
	log.Info("schema pushed", "tables", res.TablesAffected)
	return res, nil
}

func affectedTables(changes []diff.Change) []string {
	seen := map[string]struct{}{}
	for _, c := range changes {
		if c.Table != "" {
			seen[c.Table] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
