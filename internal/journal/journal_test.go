package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migratekit/internal/fsio"
)

func TestSequence(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"0001_init.sql", 1, true},
		{"0042_add_users.sql", 42, true},
		{"9999_last.sql", 9999, true},
		{"0001_init.txt", 0, false},
		{"init.sql", 0, false},
		{"001_short.sql", 0, false},
		{"0001_.sql", 0, false},
		{"", 0, false},
	}
	for _, tc := range tests {
		got, ok := Sequence(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestNextNumber(t *testing.T) {
	assert.Equal(t, 1, NextNumber(nil))
	assert.Equal(t, 1, NextNumber([]string{"README.md"}))
	assert.Equal(t, 2, NextNumber([]string{"0001_init.sql"}))
	assert.Equal(t, 8, NextNumber([]string{"0001_init.sql", "0007_later.sql", "0003_mid.sql"}))
	// Gaps are not filled; only the highest prefix counts.
	assert.Equal(t, 11, NextNumber([]string{"0010_ten.sql"}))
}

func TestFormatName(t *testing.T) {
	assert.Equal(t, "0001_init.sql", FormatName(1, "init"))
	assert.Equal(t, "0042_add-users-table.sql", FormatName(42, "add users table"))
	assert.Equal(t, "0002_cleanup.sql", FormatName(2, " cleanup "))
	assert.Equal(t, "0003_..etcpasswd.sql", FormatName(3, "../etc/passwd"))
}

func TestLoadMissingFileIsEmptyLedger(t *testing.T) {
	j, err := Load(fsio.NewMem(), "meta/journal.json")
	require.NoError(t, err)
	assert.Equal(t, Version, j.Version)
	assert.Empty(t, j.Migrations)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := fsio.NewMem()
	j := Journal{}
	j.Append(Entry{
		Name:        "0001_init.sql",
		Description: "init",
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Checksum:    "abc123",
	})

	require.NoError(t, Save(fs, "meta/journal.json", j))

	loaded, err := Load(fs, "meta/journal.json")
	require.NoError(t, err)
	assert.Equal(t, Version, loaded.Version)
	require.Len(t, loaded.Migrations, 1)
	assert.Equal(t, "0001_init.sql", loaded.Migrations[0].Name)
	assert.Equal(t, "abc123", loaded.Migrations[0].Checksum)
}

func TestLoadRejectsCorruptJournal(t *testing.T) {
	fs := fsio.NewMem()
	require.NoError(t, fs.WriteFile("meta/journal.json", []byte("{broken")))
	_, err := Load(fs, "meta/journal.json")
	assert.Error(t, err)
}

func TestDetectCollisionsNoConflict(t *testing.T) {
	j := Journal{Migrations: []Entry{
		{Name: "0001_init.sql"},
		{Name: "0002_add_users.sql"},
	}}
	files := []string{"0001_init.sql", "0002_add_users.sql", "0003_add_posts.sql"}
	assert.Empty(t, DetectCollisions(j, files))
}

func TestDetectCollisionsOnDiskDuplicates(t *testing.T) {
	files := []string{"0002_add_users.sql", "0002_add_posts.sql"}
	got := DetectCollisions(Journal{}, files)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Sequence)
	assert.Equal(t, []string{"0002_add_posts.sql", "0002_add_users.sql"}, got[0].Names)
}

func TestDetectCollisionsJournalVersusDisk(t *testing.T) {
	// Two branches generated 0002 independently; only one file made it to
	// disk, the journal remembers the other name.
	j := Journal{Migrations: []Entry{
		{Name: "0001_init.sql"},
		{Name: "0002_add_users.sql"},
	}}
	files := []string{"0001_init.sql", "0002_add_posts.sql", "0003_add_sessions.sql"}

	got := DetectCollisions(j, files)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Sequence)
	assert.Equal(t, []string{"0002_add_posts.sql", "0002_add_users.sql"}, got[0].Names)
}

func TestDetectCollisionsSortedBySequence(t *testing.T) {
	files := []string{
		"0005_b.sql", "0005_a.sql",
		"0002_y.sql", "0002_x.sql",
	}
	got := DetectCollisions(Journal{}, files)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Sequence)
	assert.Equal(t, 5, got[1].Sequence)
}

func TestDetectCollisionsIgnoresJournalOnlySequences(t *testing.T) {
	// A journal entry whose sequence has no on-disk file at all is a deleted
	// migration, not a collision.
	j := Journal{Migrations: []Entry{{Name: "0009_gone.sql"}}}
	assert.Empty(t, DetectCollisions(j, []string{"0001_init.sql"}))
}
