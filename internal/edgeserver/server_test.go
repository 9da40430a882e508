package edgeserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/54b3r/energy-assistant/internal/classifier"
	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/edge"
	"github.com/54b3r/energy-assistant/internal/feedback"
)

type fakeOrchestrator struct{ result edge.Result }

func (f *fakeOrchestrator) Process(ctx context.Context, message, token, locationID, userEmail string) edge.Result {
	return f.result
}

type fakeHistory struct {
	archived  []string
	truncated []string
	saved     []domain.ConversationMessage
	archiveErr, truncateErr, saveErr error
}

func (f *fakeHistory) GetActiveConversationPath(userEmail string) string { return "path/" + userEmail }
func (f *fakeHistory) ArchiveActiveConversation(activePath string) error {
	f.archived = append(f.archived, activePath)
	return f.archiveErr
}
func (f *fakeHistory) Truncate(path string) error {
	f.truncated = append(f.truncated, path)
	return f.truncateErr
}
func (f *fakeHistory) SaveMessage(path string, msg domain.ConversationMessage) error {
	f.saved = append(f.saved, msg)
	return f.saveErr
}

type fakeDigest struct {
	show bool
	err  error
}

func (f *fakeDigest) ShouldShow(userEmail string) (bool, error) { return f.show, f.err }

type fakeFeedback struct {
	recordErr error
	stats     feedback.Stats
	statsErr  error
}

func (f *fakeFeedback) Record(ctx context.Context, item domain.FeedbackItem) error {
	return f.recordErr
}
func (f *fakeFeedback) Stats(ctx context.Context) (feedback.Stats, error) {
	return f.stats, f.statsErr
}

func newTestServer(t *testing.T, orch Orchestrator, hist HistoryManager, dig DigestManager, fb FeedbackRecorder) *Server {
	t.Helper()
	s, err := New(orch, hist, dig, fb, &Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestHandlePromptRequiresMessage(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/prompt?token=t&location_id=l", nil)
	w := httptest.NewRecorder()

	s.handlePrompt(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandlePromptReturnsOrchestratorContent(t *testing.T) {
	result := edge.Result{InteractionID: "i1", Category: classifier.EnergyEfficiency, Content: map[string]interface{}{"message": "save energy", "type": "text"}}
	s := newTestServer(t, &fakeOrchestrator{result: result}, &fakeHistory{}, &fakeDigest{}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/prompt?message=how+do+I+save+energy&token=t&location_id=l", nil)
	w := httptest.NewRecorder()

	s.handlePrompt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["message"] != "save energy" {
		t.Errorf("message = %v", got["message"])
	}
}

func TestHandleResetArchivesAndTruncates(t *testing.T) {
	hist := &fakeHistory{}
	s := newTestServer(t, &fakeOrchestrator{}, hist, &fakeDigest{}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/reset?user_email=a@b.com", nil)
	w := httptest.NewRecorder()

	s.handleReset(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(hist.archived) != 1 || len(hist.truncated) != 1 {
		t.Fatalf("archived=%v truncated=%v", hist.archived, hist.truncated)
	}
}

func TestHandleContextReturnsNoDigestWhenAlreadyShown(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{show: false}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/context?token=t&location_id=l&user_email=a@b.com", nil)
	w := httptest.NewRecorder()

	s.handleContext(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got contextNoDigestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "no_digest_today" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestHandleContextPersistsTipWhenShown(t *testing.T) {
	hist := &fakeHistory{}
	s := newTestServer(t, &fakeOrchestrator{}, hist, &fakeDigest{show: true}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/context?token=t&location_id=l&user_email=a@b.com", nil)
	w := httptest.NewRecorder()

	s.handleContext(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(hist.saved) != 1 {
		t.Fatalf("saved = %d messages, want 1", len(hist.saved))
	}
}

func TestHandleFeedbackRejectsInvalidLabel(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/feedback/neutral?interaction_id=i1", nil)
	req.SetPathValue("label", "neutral")
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleFeedbackRecordsAndReturnsFeedbackID(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodPost, "/api/feedback/positive?interaction_id=i1", nil)
	req.SetPathValue("label", "positive")
	w := httptest.NewRecorder()

	s.handleFeedback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got feedbackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Response != "ok" || got.FeedbackID == "" {
		t.Errorf("got %+v", got)
	}
}

type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                    { return f.name }
func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHandleReadyReturnsOKWithNoPingers(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{}, &fakeFeedback{})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHandleReadyReturns503WhenAPingerFails(t *testing.T) {
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{}, &fakeFeedback{})
	s.pingers = []Pinger{&fakePinger{name: "cloud_rag", err: context.DeadlineExceeded}}

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleFeedbackStatsReturnsData(t *testing.T) {
	fb := &fakeFeedback{stats: feedback.Stats{TotalPositive: 3, TotalNegative: 1}}
	s := newTestServer(t, &fakeOrchestrator{}, &fakeHistory{}, &fakeDigest{}, fb)

	req := httptest.NewRequest(http.MethodGet, "/api/feedback/positive/stats", nil)
	req.SetPathValue("label", "positive")
	w := httptest.NewRecorder()

	s.handleFeedbackStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got feedbackStatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Data.TotalPositive != 3 || got.Data.TotalNegative != 1 {
		t.Errorf("got %+v", got.Data)
	}
}
