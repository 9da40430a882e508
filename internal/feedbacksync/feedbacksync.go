// Package feedbacksync implements the Feedback Sync component: a daily,
// non-overlapping, coalesced push of unsynced feedback from edge to cloud.
package feedbacksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/54b3r/energy-assistant/internal/domain"
)

// FeedbackSource is the subset of the feedback store this component needs.
type FeedbackSource interface {
	Unsynced(ctx context.Context, since time.Time) ([]domain.FeedbackItem, error)
	MarkSynced(ctx context.Context, feedbackIDs []string) error
}

// Syncer pushes unsynced feedback to the cloud sync endpoint on a cron
// schedule. A run already in progress causes a subsequent scheduled tick
// to be skipped rather than queued (spec 4.M: "non-overlapping").
type Syncer struct {
	source         FeedbackSource
	checkpointPath string
	endpoint       string
	httpClient     *http.Client
	log            *slog.Logger

	mu      sync.Mutex
	running bool

	cron *cron.Cron
}

// New constructs a Syncer. endpoint is the cloud /api/feedback/sync URL.
func New(source FeedbackSource, checkpointPath, endpoint string, httpClient *http.Client, log *slog.Logger) *Syncer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{source: source, checkpointPath: checkpointPath, endpoint: endpoint, httpClient: httpClient, log: log}
}

// Start schedules RunOnce on spec, a standard 5-field cron expression
// (e.g. "0 3 * * *" for 03:00 daily), and returns immediately.
func (s *Syncer) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("feedbacksync: run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("feedbacksync: schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop cancels the schedule. Any run already in progress completes.
func (s *Syncer) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce performs a single sync pass: read the checkpoint, fetch
// unsynced feedback since it, POST the batch, mark synced, advance the
// checkpoint. A concurrent call observes running=true and returns nil
// immediately (coalesced, not queued).
func (s *Syncer) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Debug("feedbacksync: skipping tick, a run is already in progress")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	checkpoint, err := s.loadCheckpoint()
	if err != nil {
		return fmt.Errorf("feedbacksync: load checkpoint: %w", err)
	}

	since := time.Time{}
	if checkpoint.LastSyncedAt != nil {
		since = *checkpoint.LastSyncedAt
	}

	items, err := s.source.Unsynced(ctx, since)
	if err != nil {
		return fmt.Errorf("feedbacksync: fetch unsynced: %w", err)
	}
	if len(items) == 0 {
		s.log.Debug("feedbacksync: no unsynced feedback")
		return nil
	}

	if err := s.push(ctx, items); err != nil {
		return fmt.Errorf("feedbacksync: push: %w", err)
	}

	ids := make([]string, len(items))
	latest := since
	for i, it := range items {
		ids[i] = it.FeedbackID
		if it.CreatedAt.After(latest) {
			latest = it.CreatedAt
		}
	}
	if err := s.source.MarkSynced(ctx, ids); err != nil {
		return fmt.Errorf("feedbacksync: mark synced: %w", err)
	}

	// Checkpoint only advances, never regresses (spec section 8 scenario 5):
	// `latest` is derived as a max over this batch and the prior checkpoint.
	if err := s.saveCheckpoint(domain.SyncCheckpoint{LastSyncedAt: &latest}); err != nil {
		return fmt.Errorf("feedbacksync: save checkpoint: %w", err)
	}
	s.log.Info("feedbacksync: synced batch", "count", len(items))
	return nil
}

func (s *Syncer) push(ctx context.Context, items []domain.FeedbackItem) error {
	body, err := json.Marshal(map[string]interface{}{"feedback": items})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloud sync endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Syncer) loadCheckpoint() (domain.SyncCheckpoint, error) {
	data, err := os.ReadFile(s.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.SyncCheckpoint{}, nil
		}
		return domain.SyncCheckpoint{}, err
	}
	var cp domain.SyncCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.SyncCheckpoint{}, nil
	}
	return cp, nil
}

func (s *Syncer) saveCheckpoint(cp domain.SyncCheckpoint) error {
	if err := os.MkdirAll(filepath.Dir(s.checkpointPath), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.checkpointPath), "checkpoint-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.checkpointPath)
}
