package sequence

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTimingFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timing.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTiming(t *testing.T) {
	path := writeTimingFile(t, `
touches:
  1: 0
  2: 24
  3: 96
`)
	timing, err := LoadTiming(path)
	if err != nil {
		t.Fatal(err)
	}
	if timing[2] != 24*time.Hour {
		t.Errorf("touch 2 wait = %v, want 24h", timing[2])
	}
	if timing.MaxTouch() != 3 {
		t.Errorf("MaxTouch() = %d, want 3", timing.MaxTouch())
	}
}

func TestLoadTimingEmptyPathUsesDefault(t *testing.T) {
	timing, err := LoadTiming("")
	if err != nil {
		t.Fatal(err)
	}
	if timing.MaxTouch() != 5 {
		t.Errorf("MaxTouch() = %d, want 5", timing.MaxTouch())
	}
}

func TestLoadTimingRejectsGaps(t *testing.T) {
	path := writeTimingFile(t, `
touches:
  1: 0
  3: 96
`)
	if _, err := LoadTiming(path); err == nil {
		t.Error("expected error for non-contiguous touch numbers")
	}
}

func TestLoadTimingRejectsOutOfRange(t *testing.T) {
	path := writeTimingFile(t, `
touches:
  1: 0
  2: 24
  3: 48
  4: 96
  5: 168
  6: 720
`)
	if _, err := LoadTiming(path); err == nil {
		t.Error("expected error for touch number above the sequence cap")
	}
}
