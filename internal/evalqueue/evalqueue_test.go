package evalqueue

import (
	"context"
	"errors"
	"testing"
)

type fakeJudge struct {
	response string
	err      error
}

func (f *fakeJudge) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func TestEnqueueIsIdempotentPerInteraction(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Enqueue(ctx, "i1", "q", "a", nil); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	if err := s.Enqueue(ctx, "i1", "q2", "a2", nil); err != nil {
		t.Fatalf("Enqueue 2 (duplicate) should not error: %v", err)
	}

	rows, err := s.PullUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("PullUnprocessed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (at-most-one per interaction_id)", len(rows))
	}
	if rows[0].Question != "q" {
		t.Errorf("question = %q, want original %q", rows[0].Question, "q")
	}
}

func TestProcessorRunOnceMarksAllRowsProcessedOnJudgeFailure(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Enqueue(ctx, "i1", "q", "a", []string{"ctx"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p := NewProcessor(s, &fakeJudge{err: errors.New("llm down")}, nil)
	n, err := p.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("processed %d rows, want 1", n)
	}

	remaining, err := s.PullUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("PullUnprocessed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected row marked processed despite judge failure, got %d remaining", len(remaining))
	}
}

func TestProcessorRunOnceParsesRelevanceScore(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Enqueue(ctx, "i1", "q", "a", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	p := NewProcessor(s, &fakeJudge{response: `{"relevance": 0.85}`}, nil)
	if _, err := p.RunOnce(ctx, 10); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	remaining, err := s.PullUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("PullUnprocessed: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected row processed, got %d remaining", len(remaining))
	}
}

func TestClamp01ClampsOutOfRange(t *testing.T) {
	if got := clamp01(1.5); got != 1 {
		t.Errorf("clamp01(1.5) = %v, want 1", got)
	}
	if got := clamp01(-0.5); got != 0 {
		t.Errorf("clamp01(-0.5) = %v, want 0", got)
	}
}
