// Package clusterfile persists JSON-serializable data under the Nyx config
// home, the way an observer persists its cluster metadata snapshot to disk
// between restarts.
package clusterfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrHomeUnresolved is returned when neither HOME nor USERPROFILE is set.
var ErrHomeUnresolved = errors.New("clusterfile: could not resolve a home directory, set HOME or USERPROFILE")

// DirManager saves and loads JSON files under nyx's config home, optionally
// scoped to a named subdirectory (e.g. one per observer instance).
type DirManager struct {
	subdir string
}

// New returns a DirManager rooted directly under the nyx config home.
func New() *DirManager {
	return &DirManager{}
}

// WithDir returns a DirManager scoped to a named subdirectory of the nyx
// config home, e.g. for a named observer instance's own cluster file.
func WithDir(subdir string) *DirManager {
	return &DirManager{subdir: subdir}
}

// Save JSON-encodes content and writes it to path under the manager's
// directory, creating the directory tree if necessary.
func (d *DirManager) Save(path string, content any) error {
	dir, err := d.baseDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("clusterfile: mkdir %s: %w", dir, err)
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("clusterfile: marshal %s: %w", path, err)
	}

	if err := os.WriteFile(filepath.Join(dir, path), payload, 0o644); err != nil {
		return fmt.Errorf("clusterfile: write %s: %w", path, err)
	}
	return nil
}

// Open reads path under the manager's directory and JSON-decodes it into v.
func (d *DirManager) Open(path string, v any) error {
	filePath, err := d.filePath(path)
	if err != nil {
		return err
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("clusterfile: read %s: %w", path, err)
	}

	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("clusterfile: unmarshal %s: %w", path, err)
	}
	return nil
}

func (d *DirManager) filePath(path string) (string, error) {
	dir, err := d.baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path), nil
}

func (d *DirManager) baseDir() (string, error) {
	tail := "nyx"
	if d.subdir != "" {
		tail = filepath.Join(tail, d.subdir)
	}

	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", tail), nil
	}
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		return filepath.Join(profile, "AppData", "Roaming", tail), nil
	}
	return "", ErrHomeUnresolved
}
