// Package journal is the local metadata ledger for generated migration files.
// It lives next to the migration directory, independent of any database, and
// exists to catch sequence-number collisions after concurrent branches merge.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"migratekit/internal/fsio"
)

// Version is the current journal file format version.
const Version = 1

// Entry records one generated migration.
type Entry struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Checksum    string    `json:"checksum"`
}

// Journal is the on-disk ledger document.
type Journal struct {
	Version    int     `json:"version"`
	Migrations []Entry `json:"migrations"`
}

// Collision reports two differently-named migrations claiming the same
// sequence number. Collisions are surfaced for manual review, never
// auto-resolved.
type Collision struct {
	Sequence int      `json:"sequenceNumber"`
	Names    []string `json:"names"`
}

var filePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Load reads the journal; a missing file is an empty ledger.
func Load(fsys fsio.FS, path string) (Journal, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Journal{Version: Version}, nil
		}
		return Journal{}, fmt.Errorf("read journal: %w", err)
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return Journal{}, fmt.Errorf("parse journal: %w", err)
	}
	return j, nil
}

// Save writes the journal back to disk.
func Save(fsys fsio.FS, path string, j Journal) error {
	j.Version = Version
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	if err := fsys.WriteFile(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// Append adds one entry to the ledger.
func (j *Journal) Append(e Entry) {
	j.Migrations = append(j.Migrations, e)
}

// Sequence extracts the numeric prefix of a migration file name.
func Sequence(name string) (int, bool) {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextNumber returns the next unused sequence number: one above the highest
// numeric prefix among the existing files. The journal does not participate,
// so a merge that brought in foreign files still yields a free number.
func NextNumber(files []string) int {
	highest := 0
	for _, f := range files {
		if n, ok := Sequence(f); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}

// FormatName renders the canonical NNNN_description.sql file name.
func FormatName(seq int, description string) string {
	return fmt.Sprintf("%04d_%s.sql", seq, sanitize(description))
}

// sanitize makes a description file-name safe without renaming what the user
// typed: spaces become dashes, path separators are stripped.
func sanitize(description string) string {
	s := strings.TrimSpace(description)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "\\", "")
	return s
}

// DetectCollisions compares the ledger's recorded entries against the on-disk
// file list. A sequence number the journal expected under one name that a
// different file now occupies is a collision, as are two on-disk files
// sharing a prefix. The result is sorted by sequence number.
func DetectCollisions(j Journal, files []string) []Collision {
	bySeq := map[int]map[string]struct{}{}
	add := func(seq int, name string) {
		if bySeq[seq] == nil {
			bySeq[seq] = map[string]struct{}{}
		}
		bySeq[seq][name] = struct{}{}
	}

	for _, f := range files {
		if seq, ok := Sequence(f); ok {
			add(seq, f)
		}
	}
	for _, e := range j.Migrations {
		seq, ok := Sequence(e.Name)
		if !ok {
			continue
		}
		if _, onDisk := bySeq[seq]; onDisk {
			add(seq, e.Name)
		}
	}

	var out []Collision
	for seq, names := range bySeq {
		if len(names) < 2 {
			continue
		}
		sorted := make([]string, 0, len(names))
		for n := range names {
			sorted = append(sorted, n)
		}
		sort.Strings(sorted)
		out = append(out, Collision{Sequence: seq, Names: sorted})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Sequence < out[k].Sequence })
	return out
}
