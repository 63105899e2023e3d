package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/i474232898/airq/internal/airquality"
)

// ErrCorrupt is returned by FileStore.Load when the file exists but cannot be
// decoded.
var ErrCorrupt = errors.New("dataset file is corrupt")

// FileStore persists a dataset as a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the dataset. The returned dataset is never nil: when the file
// is missing (ErrNotFound) or corrupt (ErrCorrupt) an empty dataset comes back
// alongside the error, so callers can log and carry on.
func (s *FileStore) Load() (*airquality.Dataset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return airquality.NewDataset(), fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return airquality.NewDataset(), fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := airquality.Decode(f)
	if err != nil {
		return airquality.NewDataset(), fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return ds, nil
}

// Save writes ds atomically: it encodes into a temporary file next to the
// target and renames it into place. Missing parent directories are created.
func (s *FileStore) Save(ds *airquality.Dataset) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := ds.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename into %s: %w", s.path, err)
	}
	return nil
}
