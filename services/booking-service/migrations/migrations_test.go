package migrations

import (
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	src, err := iofs.New(FS, ".")
	if err != nil {
		t.Fatalf("iofs: %v", err)
	}
	defer func() { _ = src.Close() }()

	version, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	count := 0
	for {
		count++
		down, _, err := src.ReadDown(version)
		if err != nil {
			t.Fatalf("version %d has no down migration: %v", version, err)
		}
		_ = down.Close()
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			t.Fatalf("next after %d: %v", version, err)
		}
		version = next
	}
	if count != 3 {
		t.Fatalf("expected 3 migrations, got %d", count)
	}
}
