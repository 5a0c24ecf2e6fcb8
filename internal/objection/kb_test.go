package objection

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadKB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objections.yaml")
	content := `
objections:
  - category: already_have_supplier
    patterns: ["already have a supplier"]
    subject: "Re: {company_name}"
    response_template: "second source pitch {booking_link}"
  - category: pricing
    patterns: ["too expensive", "pricing"]
    response_template: "pricing pitch"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	kb, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(kb) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(kb))
	}
	if kb[0].Category != "already_have_supplier" {
		t.Errorf("entry order not preserved: first is %s", kb[0].Category)
	}
}

func TestLoadKBEmptyPathUsesDefault(t *testing.T) {
	kb, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(kb) == 0 {
		t.Fatal("default kb should not be empty")
	}
}

func TestLoadKBRejectsEntryWithoutPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objections.yaml")
	content := `
objections:
  - category: pricing
    response_template: "pitch"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for entry without patterns")
	}
}
