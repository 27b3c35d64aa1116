package flow

import (
	"context"
	"fmt"

	"migratekit/internal/dbexec"
	"migratekit/internal/history"
)

// DeployOptions configures the CI/production apply flow.
type DeployOptions struct {
	DryRun bool
}

// DeployResult classifies each migration file. On a dry run Applied lists the
// files that would execute, and Previews carries their individual statements.
type DeployResult struct {
	Applied        []string
	AlreadyApplied []string
	Previews       map[string][]string
}

// Deploy applies every pending migration file in numeric order. Files whose
// name is already recorded are skipped. A failure stops the run immediately;
// migrations applied earlier in the same run stay recorded, and the partial
// result is returned alongside the error.
func (e *Engine) Deploy(ctx context.Context, opts DeployOptions) (*DeployResult, error) {
	log := e.flowLogger("deploy")

	files, err := e.listMigrationFiles()
	if err != nil {
		return nil, err
	}

	applied, err := e.loadApplied(ctx, !opts.DryRun)
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		appliedSet[a.Name] = struct{}{}
	}

	res := &DeployResult{}
	if opts.DryRun {
		res.Previews = map[string][]string{}
	}

	for _, f := range files {
		if _, ok := appliedSet[f]; ok {
			res.AlreadyApplied = append(res.AlreadyApplied, f)
			continue
		}
		sqlText, err := e.readMigration(f)
		if err != nil {
			return res, err
		}
		if opts.DryRun {
			res.Applied = append(res.Applied, f)
			res.Previews[f] = dbexec.SplitStatements(sqlText)
			continue
		}
		if err := e.History.Apply(ctx, e.DB, f, sqlText); err != nil {
			log.Error("migration failed", "file", f, "error", err)
			return res, fmt.Errorf("deploy %s: %w", f, err)
		}
		res.Applied = append(res.Applied, f)
		log.Info("migration applied", "file", f)
	}

	log.Info("deploy finished", "applied", len(res.Applied), "already_applied", len(res.AlreadyApplied), "dry_run", opts.DryRun)
	return res, nil
}

// loadApplied reads the history rows. When ensure is false (dry runs and
// read-only flows) the table is never created; a missing table simply means
// nothing has been applied.
func (e *Engine) loadApplied(ctx context.Context, ensure bool) ([]history.Applied, error) {
	if ensure {
		if err := e.History.EnsureTable(ctx, e.DB); err != nil {
			return nil, err
		}
	} else {
		exists, err := e.History.TableExists(ctx, e.DB)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, nil
		}
	}
	return e.History.Applied(ctx, e.DB)
}
