package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andrepires/biblioteca-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}

func TestInitSchemaContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init_schema.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no init schema migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE books",
		"CHECK (available_qty <= total_qty)",
		"CREATE UNIQUE INDEX uq_people_email",
		"WHERE email IS NOT NULL AND trim(email) <> ''",
		"CREATE UNIQUE INDEX uq_users_username ON users (username)",
		"CHECK (returned_qty <= qty)",
		"CHECK (status IN ('LOANED', 'RETURNED'))",
		"DROP TABLE IF EXISTS audit_logs",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
