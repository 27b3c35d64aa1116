package flow

import (
	"context"
	"fmt"
)

// BaselineResult reports which files baseline recorded.
type BaselineResult struct {
	Recorded       []string
	AlreadyApplied []string
}

// Baseline adopts a pre-existing database into migration tracking: every
// migration file not yet in history is recorded by checksum without executing
// its SQL. Used when the tables were created outside this tool.
func (e *Engine) Baseline(ctx context.Context) (*BaselineResult, error) {
	log := e.flowLogger("baseline")

	files, err := e.listMigrationFiles()
	if err != nil {
		return nil, err
	}

	applied, err := e.loadApplied(ctx, true)
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		appliedSet[a.Name] = struct{}{}
	}

	res := &BaselineResult{}
	for _, f := range files {
		if _, ok := appliedSet[f]; ok {
			res.AlreadyApplied = append(res.AlreadyApplied, f)
			continue
		}
		sqlText, err := e.readMigration(f)
		if err != nil {
			return res, err
		}
		if err := e.History.Record(ctx, e.DB, f, sqlText); err != nil {
			return res, fmt.Errorf("baseline %s: %w", f, err)
		}
		res.Recorded = append(res.Recorded, f)
		log.Info("migration recorded without execution", "file", f)
	}

	log.Info("baseline finished", "recorded", len(res.Recorded), "already_applied", len(res.AlreadyApplied))
	return res, nil
}
