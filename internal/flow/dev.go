package flow

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"migratekit/internal/diff"
	"migratekit/internal/history"
	"migratekit/internal/journal"
	"migratekit/internal/schema"
	"migratekit/internal/sqlgen"
)

// DevOptions configures the generate+apply flow.
type DevOptions struct {
	// Name overrides the auto-derived migration description.
	Name   string
	DryRun bool
}

// DevResult reports what dev generated. AppliedAt is nil for dry runs and for
// empty diffs.
type DevResult struct {
	MigrationFile string
	SQL           string
	Changes       []diff.Change
	Collisions    []journal.Collision
	AppliedAt     *time.Time
}

// Dev diffs the current in-code snapshot against the stored one, renders the
// migration and assigns the next sequence number. Unless dry-run, it then
// writes the file, appends the journal, updates the stored snapshot, executes
// the SQL and records history.
func (e *Engine) Dev(ctx context.Context, current schema.Snapshot, opts DevOptions) (*DevResult, error) {
	log := e.flowLogger("dev")

	previous, err := e.loadPreviousSnapshot()
	if err != nil {
		return nil, err
	}

	d := diff.Compute(previous, current)
	if !d.HasChanges() {
		log.Info("schema unchanged, nothing to generate")
		return &DevResult{}, nil
	}

	sqlText := sqlgen.Generate(e.Dialect, d.Changes, current)

	name := opts.Name
	if name == "" {
		name = autoName(d.Changes)
	}

	files, err := e.listMigrationFiles()
	if err != nil {
		return nil, err
	}
	seq := journal.NextNumber(files)
	fileName := journal.FormatName(seq, name)

	ledger, err := journal.Load(e.Files, e.JournalPath)
	if err != nil {
		return nil, err
	}
	collisions := journal.DetectCollisions(ledger, files)
	for _, col := range collisions {
		log.Warn("sequence collision detected", "sequence", col.Sequence, "names", col.Names)
	}

	res := &DevResult{
		MigrationFile: fileName,
		SQL:           sqlText,
		Changes:       d.Changes,
		Collisions:    collisions,
	}
	if opts.DryRun {
		log.Info("dry run, skipping side effects", "file", fileName, "changes", len(d.Changes))
		return res, nil
	}

	if err := e.Files.WriteFile(filepath.Join(e.MigrationsDir, fileName), []byte(sqlText)); err != nil {
		return nil, fmt.Errorf("write migration %s: %w", fileName, err)
	}

	ledger.Append(journal.Entry{
		Name:        fileName,
		Description: name,
		CreatedAt:   time.Now().UTC(),
		Checksum:    history.Checksum(sqlText),
	})
	if err := journal.Save(e.Files, e.JournalPath, ledger); err != nil {
		return nil, err
	}

	if err := e.saveSnapshot(current); err != nil {
		return nil, err
	}

	if err := e.History.EnsureTable(ctx, e.DB); err != nil {
		return nil, err
	}
	if err := e.History.Apply(ctx, e.DB, fileName, sqlText); err != nil {
		return nil, err
	}

	appliedAt := time.Now().UTC()
	res.AppliedAt = &appliedAt
	log.Info("migration generated and applied", "file", fileName, "changes", len(d.Changes))
	return res, nil
}

// autoName derives a migration description from the diff: single-change diffs
// get a descriptive name, anything else is update-schema.
func autoName(changes []diff.Change) string {
	if len(changes) != 1 {
		return "update-schema"
	}
	c := changes[0]
	switch c.Kind {
	case diff.TableAdded:
		return "add-" + c.Table + "-table"
	case diff.TableRemoved:
		return "drop-" + c.Table + "-table"
	case diff.ColumnAdded:
		return "add-" + c.Column + "-to-" + c.Table
	case diff.ColumnRemoved:
		return "drop-" + c.Column + "-from-" + c.Table
	case diff.ColumnRenamed:
		return "rename-" + c.OldColumn + "-to-" + c.NewColumn
	case diff.ColumnTypeChanged:
		return "alter-" + c.Table + "-" + c.Column
	case diff.IndexAdded:
		return "add-" + c.Index.Name + "-index"
	case diff.IndexRemoved:
		return "drop-" + c.Index.Name + "-index"
	case diff.EnumAdded:
		return "add-" + c.Enum + "-enum"
	case diff.EnumChanged:
		return "update-" + c.Enum + "-enum"
	default:
		return "update-schema"
	}
}
