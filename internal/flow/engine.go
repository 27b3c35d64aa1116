// Package flow composes the schema model, diff engine, SQL generator,
// history runner and journal into the named operations the CLI exposes.
// Flows contain no diffing or SQL-generation logic of their own; they decide
// which steps run, in what order, and whether side effects happen at all.
package flow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"migratekit/internal/dbexec"
	"migratekit/internal/dialect"
	"migratekit/internal/fsio"
	"migratekit/internal/history"
	"migratekit/internal/journal"
	"migratekit/internal/schema"
)

// Engine holds the injected collaborators every flow runs against. Snapshots
// are passed by value into each flow; the engine keeps no mutable schema
// state between invocations.
type Engine struct {
	Dialect       dialect.Dialect
	DB            dbexec.Querier
	Files         fsio.FS
	MigrationsDir string
	SnapshotPath  string
	JournalPath   string
	History       *history.Runner
	Logger        *slog.Logger
}

// New wires an engine. A nil logger falls back to slog.Default.
func New(d dialect.Dialect, q dbexec.Querier, fsys fsio.FS, migrationsDir, snapshotPath, journalPath string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Dialect:       d,
		DB:            q,
		Files:         fsys,
		MigrationsDir: migrationsDir,
		SnapshotPath:  snapshotPath,
		JournalPath:   journalPath,
		History:       history.New(d),
		Logger:        logger,
	}
}

// flowLogger tags every log line of one flow invocation with a run id.
func (e *Engine) flowLogger(flow string) *slog.Logger {
	return e.Logger.With("flow", flow, "run_id", uuid.NewString())
}

// listMigrationFiles returns the migration file names in the migrations
// directory, in numeric-prefix order. Files without a NNNN_ prefix are
// ignored.
func (e *Engine) listMigrationFiles() ([]string, error) {
	names, err := e.Files.List(e.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var out []string
	for _, n := range names {
		if _, ok := journal.Sequence(n); ok {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, _ := journal.Sequence(out[i])
		sj, _ := journal.Sequence(out[j])
		if si != sj {
			return si < sj
		}
		return out[i] < out[j]
	})
	return out, nil
}

func (e *Engine) readMigration(name string) (string, error) {
	data, err := e.Files.ReadFile(filepath.Join(e.MigrationsDir, name))
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", name, err)
	}
	return string(data), nil
}

// loadPreviousSnapshot reads the stored snapshot; a missing file means no
// migration has ever been generated, which is an empty schema.
func (e *Engine) loadPreviousSnapshot() (schema.Snapshot, error) {
	data, err := e.Files.ReadFile(e.SnapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schema.New(1), nil
		}
		return schema.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return schema.Decode(data)
}

func (e *Engine) saveSnapshot(s schema.Snapshot) error {
	data, err := schema.Encode(s)
	if err != nil {
		return err
	}
	if err := e.Files.WriteFile(e.SnapshotPath, data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
