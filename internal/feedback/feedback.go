// Package feedback implements the Feedback Store component: idempotent
// persistence of positive/negative interaction feedback as two JSON
// array files, one per polarity, plus summary stats over them.
package feedback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
)

const (
	positiveFilename = "positive_feedback.json"
	negativeFilename = "negative_feedback.json"
)

// ComputeFeedbackID derives the deterministic feedback_id used when the
// caller omits one: the first 32 hex characters of
// SHA-256(interactionId:created_at), lowercased.
func ComputeFeedbackID(interactionID string, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", interactionID, createdAt.Unix())))
	return strings.ToLower(hex.EncodeToString(sum[:]))[:32]
}

// Store persists feedback rows, keyed idempotently by feedback_id, into
// user_data/feedback/{positive,negative}_feedback.json arrays (spec 4.L).
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates dir (user_data/feedback) if missing and returns a Store
// bound to it. The two JSON array files are created lazily on first
// write, matching the original feedback manager's behavior.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("feedback: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(label domain.FeedbackLabel) string {
	if label == domain.FeedbackPositive {
		return filepath.Join(s.dir, positiveFilename)
	}
	return filepath.Join(s.dir, negativeFilename)
}

// loadItems reads a feedback array file. A missing file or one that
// fails to parse as a JSON array is treated as empty, not an error
// (matches the Python feedback manager's graceful degradation).
func loadItems(path string) []domain.FeedbackItem {
	data, err := os.ReadFile(path)
	if err != nil {
		return []domain.FeedbackItem{}
	}
	var items []domain.FeedbackItem
	if err := json.Unmarshal(data, &items); err != nil {
		return []domain.FeedbackItem{}
	}
	return items
}

// saveItems rewrites a feedback array file atomically: write to a temp
// file in the same directory, then rename over path.
func saveItems(path string, items []domain.FeedbackItem) error {
	if items == nil {
		items = []domain.FeedbackItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("feedback: marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".feedback-*.json.tmp")
	if err != nil {
		return fmt.Errorf("feedback: create temp: %w", err)
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
		return fmt.Errorf("feedback: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("feedback: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("feedback: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("feedback: rename into place: %w", err)
	}
	success = true
	return nil
}

// Record inserts item idempotently: a second Record call with the same
// FeedbackID is a no-op returning success, not an error (spec 4.L).
func (s *Store) Record(ctx context.Context, item domain.FeedbackItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.Score == 0 {
		item.Score = domain.FeedbackScore(item.Label)
	}

	path := s.pathFor(item.Label)
	items := loadItems(path)
	for _, existing := range items {
		if existing.FeedbackID == item.FeedbackID {
			return nil
		}
	}
	items = append(items, item)
	if err := saveItems(path, items); err != nil {
		return fmt.Errorf("feedback: record: %w", err)
	}
	return nil
}

// BatchResult reports how many rows a BatchIngest call accepted versus
// rejected as duplicates.
type BatchResult struct {
	Accepted   int
	Duplicates int
}

// BatchIngest appends items to their respective polarity files,
// skipping any feedback_id already present in that file (spec 4.L).
func (s *Store) BatchIngest(ctx context.Context, items []domain.FeedbackItem) (BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positive := loadItems(s.pathFor(domain.FeedbackPositive))
	negative := loadItems(s.pathFor(domain.FeedbackNegative))
	seen := make(map[domain.FeedbackLabel]map[string]bool, 2)
	seen[domain.FeedbackPositive] = idSet(positive)
	seen[domain.FeedbackNegative] = idSet(negative)

	var result BatchResult
	changed := make(map[domain.FeedbackLabel]bool, 2)
	for _, item := range items {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now()
		}
		if item.Score == 0 {
			item.Score = domain.FeedbackScore(item.Label)
		}
		if seen[item.Label][item.FeedbackID] {
			result.Duplicates++
			continue
		}
		seen[item.Label][item.FeedbackID] = true
		changed[item.Label] = true
		if item.Label == domain.FeedbackPositive {
			positive = append(positive, item)
		} else {
			negative = append(negative, item)
		}
		result.Accepted++
	}

	if changed[domain.FeedbackPositive] {
		if err := saveItems(s.pathFor(domain.FeedbackPositive), positive); err != nil {
			return BatchResult{}, fmt.Errorf("feedback: batch ingest: %w", err)
		}
	}
	if changed[domain.FeedbackNegative] {
		if err := saveItems(s.pathFor(domain.FeedbackNegative), negative); err != nil {
			return BatchResult{}, fmt.Errorf("feedback: batch ingest: %w", err)
		}
	}
	return result, nil
}

func idSet(items []domain.FeedbackItem) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it.FeedbackID] = true
	}
	return m
}

// DayCount is the feedback tally for a single calendar day (UTC), one
// entry of Stats.ByDay.
type DayCount struct {
	Day      string `json:"day"` // YYYY-MM-DD
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
}

// Stats is the aggregate summary returned by the feedback stats endpoints
// (supplemented feature: the original's stats body shape, see
// SPEC_FULL.md 4a).
type Stats struct {
	Total         int        `json:"total"`
	TotalPositive int        `json:"totalPositive"`
	TotalNegative int        `json:"totalNegative"`
	ByDay         []DayCount `json:"byDay"`
}

// Stats returns the all-time positive/negative counts plus a per-day
// histogram of feedback volume, computed over both JSON array files.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	positive := loadItems(s.pathFor(domain.FeedbackPositive))
	negative := loadItems(s.pathFor(domain.FeedbackNegative))

	st := Stats{TotalPositive: len(positive), TotalNegative: len(negative)}
	st.Total = st.TotalPositive + st.TotalNegative

	byDay := make(map[string]*DayCount)
	var days []string
	addDay := func(day string, positive bool) {
		dc, ok := byDay[day]
		if !ok {
			dc = &DayCount{Day: day}
			byDay[day] = dc
			days = append(days, day)
		}
		if positive {
			dc.Positive++
		} else {
			dc.Negative++
		}
	}
	for _, it := range positive {
		addDay(it.CreatedAt.UTC().Format("2006-01-02"), true)
	}
	for _, it := range negative {
		addDay(it.CreatedAt.UTC().Format("2006-01-02"), false)
	}

	sort.Strings(days)
	for _, day := range days {
		st.ByDay = append(st.ByDay, *byDay[day])
	}
	return st, nil
}

// Unsynced returns feedback rows with no synced_at timestamp, created at
// or after since, ordered by creation time then feedback_id, for the
// Feedback Sync component (spec 4.M).
func (s *Store) Unsynced(ctx context.Context, since time.Time) ([]domain.FeedbackItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []domain.FeedbackItem
	all = append(all, loadItems(s.pathFor(domain.FeedbackPositive))...)
	all = append(all, loadItems(s.pathFor(domain.FeedbackNegative))...)

	var items []domain.FeedbackItem
	for _, it := range all {
		if it.SyncedAt != nil {
			continue
		}
		if it.CreatedAt.Before(since) {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].FeedbackID < items[j].FeedbackID
	})
	return items, nil
}

// MarkSynced stamps synced_at = now for the given feedback ids, across
// both polarity files.
func (s *Store) MarkSynced(ctx context.Context, feedbackIDs []string) error {
	if len(feedbackIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]bool, len(feedbackIDs))
	for _, id := range feedbackIDs {
		ids[id] = true
	}
	now := time.Now()

	for _, label := range []domain.FeedbackLabel{domain.FeedbackPositive, domain.FeedbackNegative} {
		path := s.pathFor(label)
		items := loadItems(path)
		changed := false
		for i := range items {
			if ids[items[i].FeedbackID] && items[i].SyncedAt == nil {
				items[i].SyncedAt = &now
				changed = true
			}
		}
		if changed {
			if err := saveItems(path, items); err != nil {
				return fmt.Errorf("feedback: mark synced: %w", err)
			}
		}
	}
	return nil
}

// Close is a no-op; Store holds no file handles between calls.
func (s *Store) Close() error {
	return nil
}
