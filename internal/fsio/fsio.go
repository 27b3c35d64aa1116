// Package fsio is the file I/O boundary. The engine never touches a platform
// file API directly; flows receive an FS so tests can run fully in memory.
package fsio

import (
	"os"
	"path/filepath"
	"sort"
)

// FS reads and writes whole files and lists directory entries.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	// List returns the file names (not paths) in dir, sorted. A missing
	// directory is treated as empty.
	List(dir string) ([]string, error)
}

// OS is the FS implementation over the real filesystem. WriteFile creates
// parent directories as needed.
type OS struct{}

func (OS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OS) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func (OS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Mem is an in-memory FS for tests.
type Mem struct {
	files map[string][]byte
}

// NewMem returns an empty in-memory filesystem.
func NewMem() *Mem { return &Mem{files: map[string][]byte{}} }

func (m *Mem) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, os.ErrNotExist
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Mem) WriteFile(path string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[filepath.Clean(path)] = buf
	return nil
}

func (m *Mem) List(dir string) ([]string, error) {
	dir = filepath.Clean(dir)
	var names []string
	for path := range m.files {
		if filepath.Dir(path) == dir {
			names = append(names, filepath.Base(path))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether the in-memory file is present.
func (m *Mem) Exists(path string) bool {
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// Len returns the number of stored files.
func (m *Mem) Len() int { return len(m.files) }
