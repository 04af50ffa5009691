package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrHomeUnresolved is returned when neither HOME nor USERPROFILE is set.
var ErrHomeUnresolved = errors.New("storage: could not resolve a home directory, set HOME or USERPROFILE")

const nyxBasePath = "nyx"

// DataType distinguishes the two families of segment files a partition's
// replica keeps: the payload bytes themselves, and the fixed-stride index
// entries that locate them.
type DataType int

const (
	DataTypePartition DataType = iota
	DataTypeIndices
)

func (d DataType) String() string {
	if d == DataTypeIndices {
		return "indices"
	}
	return "partition"
}

// Directory locates and opens the segment files backing one partition
// replica's storage, rooted at <config-home>/nyx/<title>/.
type Directory struct {
	title   string
	basePath string
}

// NewDirectory resolves the per-title data root and ensures it exists.
func NewDirectory(title string) (*Directory, error) {
	base, err := baseDir(title)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create directory %s: %w", base, err)
	}

	return &Directory{title: title, basePath: base}, nil
}

func baseDir(title string) (string, error) {
	if home, ok := os.LookupEnv("HOME"); ok && home != "" {
		return filepath.Join(home, ".config", nyxBasePath, title), nil
	}

	if profile, ok := os.LookupEnv("USERPROFILE"); ok && profile != "" {
		return filepath.Join(profile, "AppData", "Roaming", nyxBasePath, title), nil
	}

	return "", ErrHomeUnresolved
}

func (d *Directory) fileName(dataType DataType, seq int) string {
	return fmt.Sprintf("%s.%s.%d.data", d.title, dataType, seq)
}

func (d *Directory) filePath(dataType DataType, seq int) string {
	return filepath.Join(d.basePath, d.fileName(dataType, seq))
}

// OpenRead opens a segment file for read-only access.
func (d *Directory) OpenRead(dataType DataType, seq int) (*os.File, error) {
	f, err := os.Open(d.filePath(dataType, seq))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s segment %d for read: %w", dataType, seq, err)
	}
	return f, nil
}

// OpenReadWriteCreate opens (creating if necessary) a segment file for
// append and random-access read.
func (d *Directory) OpenReadWriteCreate(dataType DataType, seq int) (*os.File, error) {
	f, err := os.OpenFile(d.filePath(dataType, seq), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s segment %d: %w", dataType, seq, err)
	}
	return f, nil
}

// DeleteAll removes the entire per-title directory tree.
func (d *Directory) DeleteAll() error {
	if err := os.RemoveAll(d.basePath); err != nil {
		return fmt.Errorf("storage: delete directory %s: %w", d.basePath, err)
	}
	return nil
}
