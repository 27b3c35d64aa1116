package flow

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migratekit/internal/dbexec"
	"migratekit/internal/dialect"
	"migratekit/internal/fsio"
	"migratekit/internal/history"
	"migratekit/internal/journal"
	"migratekit/internal/schema"
)

// fakeDB simulates a SQLite target well enough for the flows: it tracks user
// tables, answers sqlite_master and PRAGMA queries, and keeps history rows
// written through the runner's insert.
type fakeDB struct {
	tables         []string
	columns        map[string][]map[string]any
	historyRows    []map[string]any
	historyEnsured bool
	execs          []string
	failOn         string
}

func (f *fakeDB) Exec(_ context.Context, stmt string, args ...any) (dbexec.Result, error) {
	if f.failOn != "" && strings.Contains(stmt, f.failOn) {
		return dbexec.Result{}, assert.AnError
	}
	f.execs = append(f.execs, stmt)

	switch {
	case strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS \""+history.DefaultTable+"\""):
		f.historyEnsured = true
	case strings.HasPrefix(stmt, "INSERT INTO \""+history.DefaultTable+"\""):
		f.historyRows = append(f.historyRows, map[string]any{
			"name":       args[0],
			"checksum":   args[1],
			"applied_at": args[2],
		})
	case strings.HasPrefix(stmt, "DELETE FROM \""+history.DefaultTable+"\""):
		f.historyRows = nil
	case strings.HasPrefix(stmt, "DROP TABLE"):
		kept := f.tables[:0]
		for _, t := range f.tables {
			if !strings.Contains(stmt, `"`+t+`"`) {
				kept = append(kept, t)
			}
		}
		f.tables = kept
	}
	return dbexec.Result{}, nil
}

func (f *fakeDB) Query(_ context.Context, stmt string, _ ...any) (dbexec.Result, error) {
	switch {
	case strings.Contains(stmt, "sqlite_master"):
		names := append([]string{}, f.tables...)
		if f.historyEnsured {
			names = append(names, history.DefaultTable)
		}
		sort.Strings(names)
		rows := make([]map[string]any, 0, len(names))
		for _, n := range names {
			rows = append(rows, map[string]any{"name": n})
		}
		return dbexec.Result{Rows: rows, RowCount: len(rows)}, nil
	case strings.Contains(stmt, `FROM "`+history.DefaultTable+`"`):
		return dbexec.Result{Rows: f.historyRows, RowCount: len(f.historyRows)}, nil
	case strings.Contains(stmt, "PRAGMA table_info"):
		for table, cols := range f.columns {
			if strings.Contains(stmt, `"`+table+`"`) {
				return dbexec.Result{Rows: cols, RowCount: len(cols)}, nil
			}
		}
		return dbexec.Result{}, nil
	default:
		return dbexec.Result{}, nil
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeDB, *fsio.Mem) {
	t.Helper()
	d, err := dialect.New("sqlite")
	require.NoError(t, err)
	db := &fakeDB{}
	fs := fsio.NewMem()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(d, db, fs, "migrations", "migrations/meta/snapshot.json", "migrations/meta/journal.json", logger)
	return e, db, fs
}

func usersSnapshot() schema.Snapshot {
	s := schema.New(1)
	s.Tables["users"] = schema.Table{Columns: map[string]schema.Column{
		"id":    {Type: "uuid", Primary: true},
		"email": {Type: "text", Unique: true},
	}}
	return s
}

func TestDevFirstMigration(t *testing.T) {
	e, db, fs := newTestEngine(t)

	res, err := e.Dev(context.Background(), usersSnapshot(), DevOptions{})
	require.NoError(t, err)

	assert.Equal(t, "0001_add-users-table.sql", res.MigrationFile)
	assert.Contains(t, res.SQL, `CREATE TABLE "users"`)
	require.NotNil(t, res.AppliedAt)
	assert.Empty(t, res.Collisions)

	// File, journal and snapshot all written.
	assert.True(t, fs.Exists("migrations/0001_add-users-table.sql"))
	assert.True(t, fs.Exists("migrations/meta/journal.json"))
	assert.True(t, fs.Exists("migrations/meta/snapshot.json"))

	// History recorded with the file's checksum.
	require.Len(t, db.historyRows, 1)
	assert.Equal(t, "0001_add-users-table.sql", db.historyRows[0]["name"])
	assert.Equal(t, history.Checksum(res.SQL), db.historyRows[0]["checksum"])

	// A second run against the same snapshot is a no-op.
	again, err := e.Dev(context.Background(), usersSnapshot(), DevOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.MigrationFile)
	assert.Nil(t, again.AppliedAt)
}

func TestDevDryRunHasNoSideEffects(t *testing.T) {
	e, db, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0001_init.sql", []byte("CREATE TABLE \"a\" (\n\t\"id\" text PRIMARY KEY\n);\n")))

	res, err := e.Dev(context.Background(), usersSnapshot(), DevOptions{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, "0002_add-users-table.sql", res.MigrationFile)
	assert.Nil(t, res.AppliedAt)
	assert.NotEmpty(t, res.SQL)

	assert.Equal(t, 1, fs.Len())
	assert.Empty(t, db.execs)
	assert.Empty(t, db.historyRows)
}

func TestDevExplicitName(t *testing.T) {
	e, _, _ := newTestEngine(t)

	res, err := e.Dev(context.Background(), usersSnapshot(), DevOptions{Name: "initial accounts"})
	require.NoError(t, err)
	assert.Equal(t, "0001_initial-accounts.sql", res.MigrationFile)
}

func TestDevNamedMigrationForNewTable(t *testing.T) {
	e, db, fs := newTestEngine(t)

	s := schema.New(1)
	s.Tables["cli_users"] = schema.Table{Columns: map[string]schema.Column{
		"id":    {Type: "uuid", Primary: true},
		"email": {Type: "text", Unique: true},
		"name":  {Type: "text"},
	}}

	res, err := e.Dev(context.Background(), s, DevOptions{Name: "create_cli_users"})
	require.NoError(t, err)
	assert.Equal(t, "0001_create_cli_users.sql", res.MigrationFile)
	assert.Contains(t, res.SQL, `CREATE TABLE "cli_users"`)

	data, err := fs.ReadFile("migrations/0001_create_cli_users.sql")
	require.NoError(t, err)
	assert.Equal(t, res.SQL, string(data))
	assert.Contains(t, db.execs[len(db.execs)-1], "INSERT INTO")
}

func TestDevAutoNameFallsBackOnMultipleChanges(t *testing.T) {
	e, _, _ := newTestEngine(t)

	s := usersSnapshot()
	s.Tables["posts"] = schema.Table{Columns: map[string]schema.Column{
		"id": {Type: "uuid", Primary: true},
	}}

	res, err := e.Dev(context.Background(), s, DevOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, "0001_update-schema.sql", res.MigrationFile)
	assert.Len(t, res.Changes, 2)
}

func TestDevSurfacesCollisions(t *testing.T) {
	e, _, fs := newTestEngine(t)

	// The journal remembers 0002_add_users.sql, but a merge brought in a
	// different file under the same sequence number.
	ledger := journal.Journal{Migrations: []journal.Entry{
		{Name: "0001_init.sql"},
		{Name: "0002_add_users.sql"},
	}}
	require.NoError(t, journal.Save(fs, "migrations/meta/journal.json", ledger))
	require.NoError(t, fs.WriteFile("migrations/0001_init.sql", []byte("CREATE TABLE \"a\" (\"id\" text PRIMARY KEY);\n")))
	require.NoError(t, fs.WriteFile("migrations/0002_add_posts.sql", []byte("CREATE TABLE \"posts\" (\"id\" text PRIMARY KEY);\n")))

	res, err := e.Dev(context.Background(), usersSnapshot(), DevOptions{DryRun: true})
	require.NoError(t, err)

	// The new file takes the next free number; the collision is reported,
	// never resolved.
	assert.Equal(t, "0003_add-users-table.sql", res.MigrationFile)
	require.Len(t, res.Collisions, 1)
	assert.Equal(t, 2, res.Collisions[0].Sequence)
	assert.Equal(t, []string{"0002_add_posts.sql", "0002_add_users.sql"}, res.Collisions[0].Names)
}

func TestDeployAppliesPendingInOrder(t *testing.T) {
	e, db, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0002_posts.sql", []byte("CREATE TABLE \"posts\" (\"id\" text PRIMARY KEY);\n")))
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n")))

	res, err := e.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users.sql", "0002_posts.sql"}, res.Applied)
	assert.Empty(t, res.AlreadyApplied)
	require.Len(t, db.historyRows, 2)

	// Re-running is idempotent.
	again, err := e.Deploy(context.Background(), DeployOptions{})
	require.NoError(t, err)
	assert.Empty(t, again.Applied)
	assert.Equal(t, []string{"0001_users.sql", "0002_posts.sql"}, again.AlreadyApplied)
	assert.Len(t, db.historyRows, 2)
}

func TestDeployDryRunExecutesNothing(t *testing.T) {
	e, db, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\nCREATE INDEX \"i\" ON \"users\" (\"id\");\n")))

	res, err := e.Deploy(context.Background(), DeployOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users.sql"}, res.Applied)
	require.Contains(t, res.Previews, "0001_users.sql")
	assert.Len(t, res.Previews["0001_users.sql"], 2)

	assert.Empty(t, db.execs)
	assert.False(t, db.historyEnsured)
}

func TestDeployPartialFailureKeepsEarlierRecords(t *testing.T) {
	e, db, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n")))
	require.NoError(t, fs.WriteFile("migrations/0002_bad.sql", []byte("CREATE TABLE \"broken\" (\"id\" text PRIMARY KEY);\n")))
	db.failOn = `"broken"`

	res, err := e.Deploy(context.Background(), DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_bad.sql")
	require.NotNil(t, res)
	assert.Equal(t, []string{"0001_users.sql"}, res.Applied)

	// The first migration stays recorded; the failed one does not.
	require.Len(t, db.historyRows, 1)
	assert.Equal(t, "0001_users.sql", db.historyRows[0]["name"])
}

func TestPushExecutesWithoutTracking(t *testing.T) {
	e, db, fs := newTestEngine(t)

	res, err := e.Push(context.Background(), schema.New(1), usersSnapshot(), PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, res.TablesAffected)
	assert.Contains(t, res.SQL, `CREATE TABLE "users"`)

	// DDL ran, but no file, no journal, no snapshot, no history.
	assert.NotEmpty(t, db.execs)
	assert.Empty(t, db.historyRows)
	assert.False(t, db.historyEnsured)
	assert.Equal(t, 0, fs.Len())
}

func TestPushIdenticalSnapshots(t *testing.T) {
	e, db, _ := newTestEngine(t)

	res, err := e.Push(context.Background(), usersSnapshot(), usersSnapshot(), PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, "", res.SQL)
	assert.Equal(t, []string{}, res.TablesAffected)
	assert.Empty(t, db.execs)
}

func TestPushDryRun(t *testing.T) {
	e, db, _ := newTestEngine(t)

	res, err := e.Push(context.Background(), schema.New(1), usersSnapshot(), PushOptions{DryRun: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.SQL)
	assert.Empty(t, db.execs)
}

func TestStatusReportsPendingAndDrift(t *testing.T) {
	e, db, fs := newTestEngine(t)

	applied := "CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n"
	edited := "CREATE TABLE \"users\" (\"id\" text PRIMARY KEY, \"email\" text);\n"
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte(edited)))
	require.NoError(t, fs.WriteFile("migrations/0002_posts.sql", []byte("CREATE TABLE \"posts\" (\"id\" text PRIMARY KEY);\n")))

	db.historyEnsured = true
	db.historyRows = []map[string]any{
		{"name": "0001_users.sql", "checksum": history.Checksum(applied), "applied_at": "2025-03-01 12:00:00"},
	}

	res, err := e.Status(context.Background(), StatusOptions{})
	require.NoError(t, err)

	require.Len(t, res.Applied, 1)
	assert.Equal(t, []string{"0002_posts.sql"}, res.Pending)
	require.Len(t, res.ChecksumDrift, 1)
	assert.Equal(t, "0001_users.sql", res.ChecksumDrift[0].Name)
	assert.Empty(t, res.CodeChanges)

	// Status is read-only.
	assert.Empty(t, db.execs)
}

func TestStatusWithoutHistoryTable(t *testing.T) {
	e, db, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n")))

	res, err := e.Status(context.Background(), StatusOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, []string{"0001_users.sql"}, res.Pending)
	assert.Empty(t, db.execs)
}

func TestStatusReportsCodeChanges(t *testing.T) {
	e, _, _ := newTestEngine(t)

	saved := usersSnapshot()
	current := usersSnapshot()
	users := current.Tables["users"]
	users.Columns["bio"] = schema.Column{Type: "text", Nullable: true}
	current.Tables["users"] = users

	res, err := e.Status(context.Background(), StatusOptions{Saved: &saved, Current: &current})
	require.NoError(t, err)
	require.Len(t, res.CodeChanges, 1)
	assert.Equal(t, "bio", res.CodeChanges[0].Column)
}

func TestBaselineRecordsWithoutExecuting(t *testing.T) {
	e, db, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n")))
	require.NoError(t, fs.WriteFile("migrations/0002_posts.sql", []byte("CREATE TABLE \"posts\" (\"id\" text PRIMARY KEY);\n")))

	res, err := e.Baseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users.sql", "0002_posts.sql"}, res.Recorded)
	assert.Empty(t, res.AlreadyApplied)

	// History has both rows, but none of the migration DDL ran.
	require.Len(t, db.historyRows, 2)
	for _, stmt := range db.execs {
		assert.NotContains(t, stmt, `CREATE TABLE "users"`)
		assert.NotContains(t, stmt, `CREATE TABLE "posts"`)
	}

	again, err := e.Baseline(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Recorded)
	assert.Equal(t, []string{"0001_users.sql", "0002_posts.sql"}, again.AlreadyApplied)
}

func TestResetDropsAndReapplies(t *testing.T) {
	e, db, fs := newTestEngine(t)
	db.tables = []string{"users", "posts"}
	db.historyRows = []map[string]any{
		{"name": "0001_users.sql", "checksum": "old", "applied_at": "2025-03-01 12:00:00"},
	}
	require.NoError(t, fs.WriteFile("migrations/0001_users.sql", []byte("CREATE TABLE \"users\" (\"id\" text PRIMARY KEY);\n")))

	res, err := e.Reset(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"posts", "users"}, res.Dropped)
	assert.Equal(t, []string{"0001_users.sql"}, res.Applied)

	// Old history cleared, one fresh row from the re-apply.
	require.Len(t, db.historyRows, 1)
	assert.NotEqual(t, "old", db.historyRows[0]["checksum"])
}

func TestDetectSchemaDrift(t *testing.T) {
	e, db, _ := newTestEngine(t)
	db.tables = []string{"users", "rogue"}
	db.historyEnsured = true
	db.columns = map[string][]map[string]any{
		"users": {
			{"name": "id", "type": "TEXT", "notnull": int64(1), "pk": int64(1)},
			{"name": "age", "type": "TEXT", "notnull": int64(0), "pk": int64(0)},
			{"name": "leftover", "type": "TEXT", "notnull": int64(0), "pk": int64(0)},
		},
		"rogue": {
			{"name": "id", "type": "TEXT", "notnull": int64(1), "pk": int64(1)},
		},
		history.DefaultTable: {
			{"name": "name", "type": "TEXT", "notnull": int64(1), "pk": int64(1)},
		},
	}

	expected := schema.New(1)
	expected.Tables["users"] = schema.Table{Columns: map[string]schema.Column{
		"id":    {Type: "text", Primary: true},
		"age":   {Type: "integer"},
		"email": {Type: "text"},
	}}
	expected.Tables["orders"] = schema.Table{Columns: map[string]schema.Column{
		"id": {Type: "text", Primary: true},
	}}

	res, err := e.DetectSchemaDrift(context.Background(), expected)
	require.NoError(t, err)

	assert.False(t, res.Clean())
	assert.Equal(t, []string{"orders"}, res.MissingTables)
	// The history table never counts as drift.
	assert.Equal(t, []string{"rogue"}, res.ExtraTables)
	assert.Equal(t, []ColumnRef{{Table: "users", Column: "email"}}, res.MissingColumns)
	assert.Equal(t, []ColumnRef{{Table: "users", Column: "leftover"}}, res.ExtraColumns)
	require.Len(t, res.TypeMismatches, 1)
	assert.Equal(t, TypeMismatch{Table: "users", Column: "age", Expected: "integer", Actual: "text"}, res.TypeMismatches[0])
}

func TestDetectSchemaDriftClean(t *testing.T) {
	e, db, _ := newTestEngine(t)
	db.tables = []string{"users"}
	db.columns = map[string][]map[string]any{
		"users": {
			{"name": "id", "type": "TEXT", "notnull": int64(1), "pk": int64(1)},
		},
	}

	expected := schema.New(1)
	expected.Tables["users"] = schema.Table{Columns: map[string]schema.Column{
		"id": {Type: "text", Primary: true},
	}}

	res, err := e.DetectSchemaDrift(context.Background(), expected)
	require.NoError(t, err)
	assert.True(t, res.Clean())
}

func TestListMigrationFilesFiltersAndOrders(t *testing.T) {
	e, _, fs := newTestEngine(t)
	require.NoError(t, fs.WriteFile("migrations/0010_ten.sql", nil))
	require.NoError(t, fs.WriteFile("migrations/0002_two.sql", nil))
	require.NoError(t, fs.WriteFile("migrations/README.md", nil))
	require.NoError(t, fs.WriteFile("migrations/notes.sql", nil))

	files, err := e.listMigrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_two.sql", "0010_ten.sql"}, files)
}

func TestAutoNameSingleChanges(t *testing.T) {
	base := usersSnapshot()

	t.Run("column added", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		require.NoError(t, e.saveSnapshot(base))

		cur := usersSnapshot()
		users := cur.Tables["users"]
		users.Columns["bio"] = schema.Column{Type: "text", Nullable: true}
		cur.Tables["users"] = users

		res, err := e.Dev(context.Background(), cur, DevOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, "0001_add-bio-to-users.sql", res.MigrationFile)
	})

	t.Run("column renamed", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		require.NoError(t, e.saveSnapshot(base))

		cur := usersSnapshot()
		users := cur.Tables["users"]
		delete(users.Columns, "email")
		users.Columns["email_address"] = schema.Column{Type: "text", Unique: true}
		cur.Tables["users"] = users

		res, err := e.Dev(context.Background(), cur, DevOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, "0001_rename-email-to-email_address.sql", res.MigrationFile)
	})

	t.Run("table dropped", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		require.NoError(t, e.saveSnapshot(base))

		res, err := e.Dev(context.Background(), schema.New(1), DevOptions{DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, "0001_drop-users-table.sql", res.MigrationFile)
	})
}
