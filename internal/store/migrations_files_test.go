package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationFilesArePairedAndSequential(t *testing.T) {
	ups, err := migrationFiles(testMigrationsDir, upSuffix)
	if err != nil {
		t.Fatalf("migrationFiles(up) error = %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no up migrations found")
	}

	for i, up := range ups {
		name := filepath.Base(up)
		want := fmt.Sprintf("%04d_", i+1)
		if !strings.HasPrefix(name, want) {
			t.Errorf("migration %d is %s, want prefix %s", i, name, want)
		}
		down := strings.TrimSuffix(up, upSuffix) + downSuffix
		if _, err := os.Stat(down); err != nil {
			t.Errorf("%s has no down migration: %v", name, err)
		}
	}

	downs, err := migrationFiles(testMigrationsDir, downSuffix)
	if err != nil {
		t.Fatalf("migrationFiles(down) error = %v", err)
	}
	if len(downs) != len(ups) {
		t.Fatalf("found %d down migrations for %d up migrations", len(downs), len(ups))
	}
}
