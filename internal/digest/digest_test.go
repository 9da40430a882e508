package digest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/energy-assistant/internal/history"
)

func TestShouldShowDefaultsTrueWithNoEmail(t *testing.T) {
	m := New(t.TempDir())
	show, err := m.ShouldShow("")
	if err != nil {
		t.Fatalf("ShouldShow: %v", err)
	}
	if !show {
		t.Error("expected true for empty email (legacy default)")
	}
}

func TestShouldShowOncePerDay(t *testing.T) {
	m := New(t.TempDir())

	first, err := m.ShouldShow("user@example.com")
	if err != nil {
		t.Fatalf("ShouldShow 1: %v", err)
	}
	if !first {
		t.Error("expected true on first call")
	}

	second, err := m.ShouldShow("user@example.com")
	if err != nil {
		t.Fatalf("ShouldShow 2: %v", err)
	}
	if second {
		t.Error("expected false on second call same day")
	}
}

func TestShouldShowIsolatesByUser(t *testing.T) {
	m := New(t.TempDir())

	if _, err := m.ShouldShow("a@example.com"); err != nil {
		t.Fatalf("ShouldShow a: %v", err)
	}
	showB, err := m.ShouldShow("b@example.com")
	if err != nil {
		t.Fatalf("ShouldShow b: %v", err)
	}
	if !showB {
		t.Error("a different user's digest should not be suppressed by a's record")
	}
}

func TestShouldShowWritesOneTrackingFilePerUser(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	if _, err := m.ShouldShow("user@example.com"); err != nil {
		t.Fatalf("ShouldShow: %v", err)
	}

	wantPath := filepath.Join(dir, history.GetUserHash("user@example.com")+"_digest_log.json")
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("expected tracking file %s, got: %v", wantPath, err)
	}
}

func TestGenerateTipIsDeterministicByDayOfYear(t *testing.T) {
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tip1 := GenerateTip(day)
	tip2 := GenerateTip(day)
	if tip1 != tip2 {
		t.Error("GenerateTip should be deterministic for the same day")
	}
}

func TestTipForDayOfYearWrapsModuloTableSize(t *testing.T) {
	n := TipCount()
	a := TipForDayOfYear(1)
	b := TipForDayOfYear(1 + n)
	if a != b {
		t.Error("expected wraparound at table size via modulo")
	}
}
