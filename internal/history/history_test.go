package history

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
)

func TestGetUserHashIsStableAndCaseInsensitive(t *testing.T) {
	a := GetUserHash("User@Example.com")
	b := GetUserHash("user@example.com")
	if a != b {
		t.Errorf("hash should be case-insensitive: %q != %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
}

func TestSaveMessageThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	path := m.GetActiveConversationPath("user@example.com")

	msg := domain.ConversationMessage{InteractionID: "i1", Role: domain.RoleUser, Content: "hello", Timestamp: time.Now()}
	if err := m.SaveMessage(path, msg); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	got := m.LoadConversationHistory(path)
	if len(got) != 1 || got[0].Content != "hello" {
		t.Fatalf("got %+v", got)
	}
}

func TestLoadConversationHistoryMissingFileReturnsEmpty(t *testing.T) {
	m := New(t.TempDir())
	got := m.LoadConversationHistory(filepath.Join(t.TempDir(), "missing.json"))
	if len(got) != 0 {
		t.Errorf("got %d messages, want 0", len(got))
	}
}

func TestArchiveActiveConversationRenamesNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)
	path := m.GetActiveConversationPath("user@example.com")

	if err := m.SaveMessage(path, domain.ConversationMessage{InteractionID: "i1", Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := m.ArchiveActiveConversation(path); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*conversation_*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected 1 archived file, got %d", len(matches))
	}

	wantPrefix := GetUserHash("user@example.com") + "_conversation_"
	gotName := filepath.Base(matches[0])
	if !strings.HasPrefix(gotName, wantPrefix) {
		t.Errorf("archived filename %q does not start with %q (hash and \"conversation_\" must be separated by an underscore)", gotName, wantPrefix)
	}
}

func TestArchiveActiveConversationMissingFileIsNoop(t *testing.T) {
	m := New(t.TempDir())
	path := m.GetActiveConversationPath("nobody@example.com")
	if err := m.ArchiveActiveConversation(path); err != nil {
		t.Fatalf("Archive on missing file should be a no-op, got: %v", err)
	}
}
