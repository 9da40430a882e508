package feedback

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestRecordIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()

	item := domain.FeedbackItem{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive}
	ctx := context.Background()

	if err := s.Record(ctx, item); err != nil {
		t.Fatalf("Record 1: %v", err)
	}
	if err := s.Record(ctx, item); err != nil {
		t.Fatalf("Record 2 (duplicate) should not error: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalPositive != 1 {
		t.Errorf("TotalPositive = %d, want 1 (duplicate record must not double-count)", stats.TotalPositive)
	}
}

func TestStatsCountsByLabel(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive})
	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f2", InteractionID: "i2", Label: domain.FeedbackNegative})
	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f3", InteractionID: "i3", Label: domain.FeedbackPositive})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalPositive != 2 || stats.TotalNegative != 1 {
		t.Errorf("got %+v, want {2 1}", stats)
	}
}

func TestStatsIncludesTotalAndByDayHistogram(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive, CreatedAt: day})
	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f2", InteractionID: "i2", Label: domain.FeedbackNegative, CreatedAt: day})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if len(stats.ByDay) != 1 {
		t.Fatalf("ByDay = %+v, want 1 entry", stats.ByDay)
	}
	if stats.ByDay[0].Positive != 1 || stats.ByDay[0].Negative != 1 {
		t.Errorf("ByDay[0] = %+v, want {Positive:1 Negative:1}", stats.ByDay[0])
	}
}

func TestBatchIngestCountsAcceptedAndDuplicates(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive})

	result, err := s.BatchIngest(ctx, []domain.FeedbackItem{
		{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive}, // duplicate
		{FeedbackID: "f2", InteractionID: "i2", Label: domain.FeedbackNegative}, // new
	})
	if err != nil {
		t.Fatalf("BatchIngest: %v", err)
	}
	if result.Accepted != 1 || result.Duplicates != 1 {
		t.Errorf("got %+v, want {Accepted:1 Duplicates:1}", result)
	}
}

func TestRecordWritesSeparatePositiveAndNegativeJSONArrayFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Record(ctx, domain.FeedbackItem{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive}); err != nil {
		t.Fatalf("Record positive: %v", err)
	}
	if err := s.Record(ctx, domain.FeedbackItem{FeedbackID: "f2", InteractionID: "i2", Label: domain.FeedbackNegative}); err != nil {
		t.Fatalf("Record negative: %v", err)
	}

	posPath := filepath.Join(dir, "positive_feedback.json")
	negPath := filepath.Join(dir, "negative_feedback.json")

	posData, err := os.ReadFile(posPath)
	if err != nil {
		t.Fatalf("read %s: %v", posPath, err)
	}
	var posItems []domain.FeedbackItem
	if err := json.Unmarshal(posData, &posItems); err != nil {
		t.Fatalf("%s is not a JSON array: %v", posPath, err)
	}
	if len(posItems) != 1 || posItems[0].FeedbackID != "f1" {
		t.Errorf("%s = %+v, want one item f1", posPath, posItems)
	}

	negData, err := os.ReadFile(negPath)
	if err != nil {
		t.Fatalf("read %s: %v", negPath, err)
	}
	var negItems []domain.FeedbackItem
	if err := json.Unmarshal(negData, &negItems); err != nil {
		t.Fatalf("%s is not a JSON array: %v", negPath, err)
	}
	if len(negItems) != 1 || negItems[0].FeedbackID != "f2" {
		t.Errorf("%s = %+v, want one item f2", negPath, negItems)
	}
}

func TestComputeFeedbackIDIsDeterministic(t *testing.T) {
	ts := time.Unix(1000, 0)
	a := ComputeFeedbackID("i1", ts)
	b := ComputeFeedbackID("i1", ts)
	if a != b {
		t.Errorf("ComputeFeedbackID not deterministic: %q != %q", a, b)
	}
	if len(a) != 32 {
		t.Errorf("len = %d, want 32", len(a))
	}
}

func TestUnsyncedThenMarkSyncedExcludesFromNextQuery(t *testing.T) {
	s := openTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_ = s.Record(ctx, domain.FeedbackItem{FeedbackID: "f1", InteractionID: "i1", Label: domain.FeedbackPositive})

	unsynced, err := s.Unsynced(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Unsynced: %v", err)
	}
	if len(unsynced) != 1 {
		t.Fatalf("got %d unsynced, want 1", len(unsynced))
	}

	if err := s.MarkSynced(ctx, []string{"f1"}); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	unsynced, err = s.Unsynced(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Unsynced 2: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("got %d unsynced after mark, want 0", len(unsynced))
	}
}
