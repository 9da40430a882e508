// Package history implements the Session/History Manager component:
// per-user conversation files, archival, and user-hash isolation.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/energy-assistant/internal/domain"
)

// Manager provides generate_interaction_id, get_user_hash,
// get_active_conversation_path, load_conversation_history, save_message,
// and archive_active_conversation (spec 4.O).
type Manager struct {
	baseDir string

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Manager rooted at baseDir (typically
// user_data/conversations).
func New(baseDir string) *Manager {
	return &Manager{baseDir: baseDir, locks: make(map[string]*sync.Mutex)}
}

// GenerateInteractionID returns a new UUIDv4 interaction id.
func GenerateInteractionID() string {
	return uuid.NewString()
}

// GetUserHash returns the first 16 hex characters of SHA-256 of the
// lowercased email, the stable per-user isolation key.
func GetUserHash(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])[:16]
}

// GetActiveConversationPath returns the path of the active conversation
// file for userEmail. When userEmail is empty, a legacy global file path
// is used instead (spec 4.I).
func (m *Manager) GetActiveConversationPath(userEmail string) string {
	if userEmail == "" {
		return filepath.Join(m.baseDir, "active_conversation.json")
	}
	return filepath.Join(m.baseDir, GetUserHash(userEmail)+"_active_conversation.json")
}

// lockFor returns (creating if needed) the per-user mutex guarding
// concurrent writes to a single user's conversation file. Cross-user
// writes proceed in parallel (spec section 5).
func (m *Manager) lockFor(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}

// LoadConversationHistory reads the conversation file at path, returning
// an empty slice (not an error) when the file is missing or malformed.
func (m *Manager) LoadConversationHistory(path string) []domain.ConversationMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		return []domain.ConversationMessage{}
	}
	var msgs []domain.ConversationMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return []domain.ConversationMessage{}
	}
	return msgs
}

// SaveMessage appends msg to the conversation at path: the entire list
// is loaded, appended to, and rewritten (spec 4.O: "append-then-rewrite").
// Writes to the same path are serialized via a per-path lock.
func (m *Manager) SaveMessage(path string, msg domain.ConversationMessage) error {
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	msgs := m.LoadConversationHistory(path)
	msgs = append(msgs, msg)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("history: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("history: write %s: %w", path, err)
	}
	return nil
}

// ArchiveActiveConversation renames the active file at activePath to
// {basename}_conversation_{YYYYMMDD_HHMMSS}.json. If the file is missing
// or empty, the operation is a successful no-op (spec 4.I).
func (m *Manager) ArchiveActiveConversation(activePath string) error {
	lock := m.lockFor(activePath)
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("history: stat %s: %w", activePath, err)
	}
	if info.Size() == 0 {
		return nil
	}

	dir := filepath.Dir(activePath)
	base := filepath.Base(activePath)
	prefix := strings.TrimSuffix(base, "_active_conversation.json")
	if prefix == base {
		prefix = strings.TrimSuffix(base, "active_conversation.json")
	}
	timestamp := time.Now().Format("20060102_150405")
	var archiveName string
	if prefix == "" {
		archiveName = fmt.Sprintf("conversation_%s.json", timestamp)
	} else {
		archiveName = fmt.Sprintf("%s_conversation_%s.json", prefix, timestamp)
	}
	archivePath := filepath.Join(dir, archiveName)

	if err := os.Rename(activePath, archivePath); err != nil {
		return fmt.Errorf("history: archive rename: %w", err)
	}
	return nil
}

// Truncate replaces the active conversation file at path with an empty
// list, used by the edge reset endpoint after archival.
func (m *Manager) Truncate(path string) error {
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("history: mkdir: %w", err)
	}
	return os.WriteFile(path, []byte("[]"), 0o644)
}
