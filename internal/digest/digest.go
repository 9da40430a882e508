// Package digest implements the Daily Digest component: once-per-user-
// per-day injection of an energy-efficiency tip into conversation
// history.
package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/history"
)

// Manager tracks which users have already received today's digest and
// generates the digest message. Each user's tracking record lives in
// its own file, {user_hash}_digest_log.json, under trackingDir (spec
// 4.P / original daily_digest.py layout).
type Manager struct {
	trackingDir string
	mu          sync.Mutex
}

// New constructs a Manager backed by per-user tracking files under
// trackingDir (user_data/digest_tracking).
func New(trackingDir string) *Manager {
	return &Manager{trackingDir: trackingDir}
}

func (m *Manager) trackingPath(userHash string) string {
	return filepath.Join(m.trackingDir, userHash+"_digest_log.json")
}

// ShouldShow consults the tracking file for userEmail. An empty
// userEmail defaults to true (legacy, no per-user tracking possible).
// If a record indicates the digest was already shown today (server
// local time), returns false. Otherwise it records today's date and
// returns true.
func (m *Manager) ShouldShow(userEmail string) (bool, error) {
	if userEmail == "" {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	userHash := history.GetUserHash(userEmail)
	path := m.trackingPath(userHash)
	today := time.Now().Format("2006-01-02")

	state, err := loadState(path)
	if err != nil {
		return false, err
	}
	if state.LastDigestDate == today {
		return false, nil
	}

	state.UserHash = userHash
	state.LastDigestDate = today
	state.LastUpdated = time.Now()
	if err := saveState(path, state); err != nil {
		return false, err
	}
	return true, nil
}

// GenerateTip selects today's tip deterministically as day_of_year mod N.
func GenerateTip(now time.Time) string {
	return TipForDayOfYear(now.YearDay())
}

// FormattedMessage renders the tip as the assistant message appended to
// the active conversation.
func FormattedMessage(tip string) string {
	return fmt.Sprintf("Here's today's energy-saving tip: %s", tip)
}

func loadState(path string) (domain.DigestState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.DigestState{}, nil
		}
		return domain.DigestState{}, fmt.Errorf("digest: read tracking file %s: %w", path, err)
	}
	var state domain.DigestState
	if err := json.Unmarshal(data, &state); err != nil {
		// Matches the original's graceful degradation on a corrupted file.
		return domain.DigestState{}, nil
	}
	return state, nil
}

func saveState(path string, state domain.DigestState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("digest: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("digest: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".digest-log-*.json.tmp")
	if err != nil {
		return fmt.Errorf("digest: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("digest: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("digest: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("digest: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("digest: rename into place: %w", err)
	}
	success = true
	return nil
}
