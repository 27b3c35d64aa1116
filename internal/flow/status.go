package flow

import (
	"context"

	"migratekit/internal/diff"
	"migratekit/internal/history"
	"migratekit/internal/schema"
)

// StatusOptions optionally provides the stored and in-code snapshots so
// status can report schema drift between code and migration history.
type StatusOptions struct {
	Saved   *schema.Snapshot
	Current *schema.Snapshot
}

// StatusResult reports applied vs pending files, structural changes not yet
// captured in a migration, and checksum drift of already-applied files.
type StatusResult struct {
	Applied        []history.Applied
	Pending        []string
	CodeChanges    []diff.Change
	ChecksumDrift  []history.Drift
}

// Status is read-only: it never creates the history table and never writes
// files.
func (e *Engine) Status(ctx context.Context, opts StatusOptions) (*StatusResult, error) {
	log := e.flowLogger("status")

	files, err := e.listMigrationFiles()
	if err != nil {
		return nil, err
	}

	applied, err := e.loadApplied(ctx, false)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{
		Applied: applied,
		Pending: history.Pending(files, applied),
	}

	fileSQL := make(map[string]string, len(files))
	for _, f := range files {
		sqlText, err := e.readMigration(f)
		if err != nil {
			return nil, err
		}
		fileSQL[f] = sqlText
	}
	res.ChecksumDrift = history.VerifyChecksums(fileSQL, applied)

	if opts.Saved != nil && opts.Current != nil {
		res.CodeChanges = diff.Compute(*opts.Saved, *opts.Current).Changes
	}

	log.Info("status computed",
		"applied", len(res.Applied),
		"pending", len(res.Pending),
		"code_changes", len(res.CodeChanges),
		"checksum_drift", len(res.ChecksumDrift),
	)
	return res, nil
}
