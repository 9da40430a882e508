package ragserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/feedback"
	"github.com/54b3r/energy-assistant/internal/generation"
	"github.com/54b3r/energy-assistant/internal/rag"
	"github.com/54b3r/energy-assistant/internal/retrieval"
)

type fakeRetriever struct{ docs []retrieval.Scored }

func (f *fakeRetriever) Retrieve(ctx context.Context, question string, topKHint int) []retrieval.Scored {
	return f.docs
}

type fakeAnswerer struct {
	resp *domain.EnergyEfficiencyResponse
	err  error
}

func (f *fakeAnswerer) Answer(ctx context.Context, question, interactionID string, topK int, contextDocs []generation.ContextDoc) (*domain.EnergyEfficiencyResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.InteractionID = interactionID
	return &resp, nil
}

type fakeFeedbackBatcher struct {
	result feedback.BatchResult
	err    error
}

func (f *fakeFeedbackBatcher) BatchIngest(ctx context.Context, items []domain.FeedbackItem) (feedback.BatchResult, error) {
	return f.result, f.err
}

type fakeEvalEnqueuer struct{ calls int }

func (f *fakeEvalEnqueuer) Enqueue(ctx context.Context, interactionID, question, answer string, context []string) error {
	f.calls++
	return nil
}

func newTestServer(t *testing.T, retriever Retriever, answerer Answerer, fb FeedbackBatcher) *Server {
	t.Helper()
	s, err := New(retriever, answerer, fb, &fakeEvalEnqueuer{}, &Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestHandleRAGAnswerReturnsValidatedResponse(t *testing.T) {
	retriever := &fakeRetriever{docs: []retrieval.Scored{{Doc: rag.Document{Content: "turn off standby devices", Source: "tip1"}, Score: 0.9}}}
	answerer := &fakeAnswerer{resp: &domain.EnergyEfficiencyResponse{Message: "unplug idle devices", Type: "text", Content: []domain.ContentItem{}}}
	s := newTestServer(t, retriever, answerer, &fakeFeedbackBatcher{})

	body, _ := json.Marshal(ragAnswerRequest{Question: "how do I save energy?", InteractionID: "int-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/rag/answer", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleRAGAnswer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got domain.EnergyEfficiencyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Message != "unplug idle devices" {
		t.Errorf("message = %q", got.Message)
	}
	if got.InteractionID != "int-1" {
		t.Errorf("interactionId = %q, want int-1", got.InteractionID)
	}
}

func TestHandleRAGAnswerRejectsEmptyQuestion(t *testing.T) {
	s := newTestServer(t, &fakeRetriever{}, &fakeAnswerer{resp: &domain.EnergyEfficiencyResponse{}}, &fakeFeedbackBatcher{})

	body, _ := json.Marshal(ragAnswerRequest{Question: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/rag/answer", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleRAGAnswer(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleRAGAnswerReturns500OnGeneratorError(t *testing.T) {
	answerer := &fakeAnswerer{err: context.DeadlineExceeded}
	s := newTestServer(t, &fakeRetriever{}, answerer, &fakeFeedbackBatcher{})

	body, _ := json.Marshal(ragAnswerRequest{Question: "how do I save energy?"})
	req := httptest.NewRequest(http.MethodPost, "/api/rag/answer", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleRAGAnswer(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var errResp domain.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errResp.Type != "error" {
		t.Errorf("type = %q, want error", errResp.Type)
	}
}

func TestHandleFeedbackSyncReturnsAcceptedAndDuplicates(t *testing.T) {
	fb := &fakeFeedbackBatcher{result: feedback.BatchResult{Accepted: 2, Duplicates: 1}}
	s := newTestServer(t, &fakeRetriever{}, &fakeAnswerer{resp: &domain.EnergyEfficiencyResponse{}}, fb)

	body, _ := json.Marshal(feedbackSyncRequest{Items: []domain.FeedbackItem{{FeedbackID: "a"}, {FeedbackID: "b"}, {FeedbackID: "c"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/feedback/sync", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleFeedbackSync(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got feedbackSyncResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Accepted != 2 || got.Duplicates != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestHandleHealthReturnsOKWithNoPingers(t *testing.T) {
	s := newTestServer(t, &fakeRetriever{}, &fakeAnswerer{resp: &domain.EnergyEfficiencyResponse{}}, &fakeFeedbackBatcher{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "ok" {
		t.Errorf("status = %q, want ok", got.Status)
	}
}
