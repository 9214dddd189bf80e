package db

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LoadFile loads the snapshot at path into database.
// A missing file is not an error: the database is left as it is.
func LoadFile(database KVDB, path string) (loaded bool, err error) {
	if !database.SupportsFeature(FeatureLoad) {
		return false, fmt.Errorf("database does not support %s", FeatureLoad)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if err := database.Load(f); err != nil {
		return false, fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return true, nil
}

// SaveFile writes a snapshot of database to path with WriteFile.
func SaveFile(database KVDB, path string) error {
	if !database.SupportsFeature(FeatureSave) {
		return fmt.Errorf("database does not support %s", FeatureSave)
	}
	if err := WriteFile(path, database.Save); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// WriteFile writes to a temporary file in the directory of path (created if
// missing) and renames it over path once write succeeded. On failure path is
// left untouched and the temporary file is removed.
func WriteFile(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
