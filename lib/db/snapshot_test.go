package db_test

import (
	"errors"
	"github.com/ValentinKolb/kiln/lib/db"
	"github.com/ValentinKolb/kiln/lib/db/engines/maple"
	"os"
	"io"
	"path/filepath"
	"testing"
)

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kiln.db")

	source := maple.NewMapleDB(nil)
	defer source.Close()
	if err := source.Set("kiln:customers:c1", []byte(`{"id":"c1"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := db.SaveFile(source, path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the snapshot file to remain, got %d entries", len(entries))
	}

	target := maple.NewMapleDB(nil)
	defer target.Close()
	loaded, err := db.LoadFile(target, path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !loaded {
		t.Fatalf("Expected snapshot to be loaded")
	}
	if got, ok := target.Get("kiln:customers:c1"); !ok || string(got) != `{"id":"c1"}` {
		t.Errorf("Unexpected value after LoadFile: %q (found=%v)", got, ok)
	}
}

func TestLoadFileMissing(t *testing.T) {
	database := maple.NewMapleDB(nil)
	defer database.Close()

	loaded, err := db.LoadFile(database, filepath.Join(t.TempDir(), "missing.db"))
	if err != nil {
		t.Fatalf("Expected no error for a missing snapshot, got %v", err)
	}
	if loaded {
		t.Errorf("Expected loaded=false for a missing snapshot")
	}
}

func TestLoadFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	database := maple.NewMapleDB(nil)
	defer database.Close()
	if _, err := db.LoadFile(database, path); err == nil {
		t.Errorf("Expected LoadFile to fail for a corrupt snapshot")
	}
}

func TestWriteFileKeepsTargetOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	failure := errors.New("encoder broke")
	err := db.WriteFile(path, func(w io.Writer) error {
		_, _ = io.WriteString(w, "half")
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("Expected the write error, got %v", err)
	}

	if got, _ := os.ReadFile(path); string(got) != "previous" {
		t.Errorf("Expected the target to be untouched, got %q", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected the temporary file to be removed, got %d entries", len(entries))
	}

	if err := db.WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "next")
		return err
	}); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "next" {
		t.Errorf("Expected the new content, got %q", got)
	}
}
