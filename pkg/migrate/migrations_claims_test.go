package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClaimMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_claimed_supply_items.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no claim migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS claimed_supply_items",
		"FOREIGN KEY (preparation_item_id) REFERENCES preparation_items(id) ON DELETE CASCADE",
		"CHECK (claimed_quantity > 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS uniq_claims_item_user",
		"DROP TABLE IF EXISTS claimed_supply_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPollMigrationEnforcesSingleResponse(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_polls.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no poll migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS poll_responses",
		"CREATE UNIQUE INDEX IF NOT EXISTS uniq_poll_responses_poll_user",
		"DROP TABLE IF EXISTS poll_responses",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
