package edge

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/energy-assistant/internal/classifier"
	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/history"
)

type fakeClassifier struct{ category classifier.Category }

func (f *fakeClassifier) Classify(ctx context.Context, message string) classifier.Category {
	return f.category
}

type fakeDevices struct {
	text string
	err  error
}

func (f *fakeDevices) Run(ctx context.Context, interactionID, message, token, locationID string) (string, error) {
	return f.text, f.err
}

type fakeEfficiency struct {
	resp *domain.EnergyEfficiencyResponse
	err  error
}

func (f *fakeEfficiency) Run(ctx context.Context, question, interactionID string, topK int) (*domain.EnergyEfficiencyResponse, error) {
	return f.resp, f.err
}

func TestProcessDispatchesDeviceControl(t *testing.T) {
	hist := history.New(t.TempDir())
	o := New(hist, &fakeClassifier{category: classifier.DeviceControl}, &fakeDevices{text: "turned off the lights"}, &fakeEfficiency{}, nil)

	result := o.Process(context.Background(), "turn off the lights", "tok", "loc1", "user@example.com")
	if result.Category != classifier.DeviceControl {
		t.Errorf("category = %v, want DeviceControl", result.Category)
	}
	content, ok := result.Content.(map[string]interface{})
	if !ok {
		t.Fatalf("content type = %T, want map[string]interface{}", result.Content)
	}
	if content["message"] != "turned off the lights" {
		t.Errorf("message = %v", content["message"])
	}
}

func TestProcessDispatchesEnergyEfficiency(t *testing.T) {
	hist := history.New(t.TempDir())
	resp := &domain.EnergyEfficiencyResponse{Message: "save energy by X", InteractionID: "from-pipeline", Type: "text", Content: []domain.ContentItem{}}
	o := New(hist, &fakeClassifier{category: classifier.EnergyEfficiency}, &fakeDevices{}, &fakeEfficiency{resp: resp}, nil)

	result := o.Process(context.Background(), "how do I save energy?", "tok", "loc1", "user@example.com")
	if result.Category != classifier.EnergyEfficiency {
		t.Errorf("category = %v, want EnergyEfficiency", result.Category)
	}
	got, ok := result.Content.(*domain.EnergyEfficiencyResponse)
	if !ok {
		t.Fatalf("content type = %T", result.Content)
	}
	if got.Message != "save energy by X" {
		t.Errorf("message = %q", got.Message)
	}
}

func TestProcessOtherReturnsRejectionWithoutDispatch(t *testing.T) {
	hist := history.New(t.TempDir())
	devices := &fakeDevices{err: errors.New("should not be called")}
	o := New(hist, &fakeClassifier{category: classifier.Other}, devices, &fakeEfficiency{}, nil)

	result := o.Process(context.Background(), "what's the weather", "tok", "loc1", "")
	if result.Category != classifier.Other {
		t.Errorf("category = %v, want Other", result.Category)
	}
	content, ok := result.Content.(map[string]interface{})
	if !ok {
		t.Fatalf("content type = %T", result.Content)
	}
	if content["type"] != "text" {
		t.Errorf("type = %v, want text", content["type"])
	}
}

func TestProcessPersistsUserAndAssistantMessages(t *testing.T) {
	dir := t.TempDir()
	hist := history.New(dir)
	resp := &domain.EnergyEfficiencyResponse{Message: "tip", InteractionID: "x", Type: "text", Content: []domain.ContentItem{}}
	o := New(hist, &fakeClassifier{category: classifier.EnergyEfficiency}, &fakeDevices{}, &fakeEfficiency{resp: resp}, nil)

	o.Process(context.Background(), "how do I save energy?", "tok", "loc1", "user@example.com")

	path := hist.GetActiveConversationPath("user@example.com")
	msgs := hist.LoadConversationHistory(path)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (user + assistant)", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Errorf("roles = %v, %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestProcessRecoversFromPipelinePanic(t *testing.T) {
	hist := history.New(t.TempDir())
	o := New(hist, &fakeClassifier{category: classifier.DeviceControl}, &panickingDevices{}, &fakeEfficiency{}, nil)

	result := o.Process(context.Background(), "turn on the lights", "tok", "loc1", "")
	errResp, ok := result.Content.(domain.ErrorResponse)
	if !ok {
		t.Fatalf("content type = %T, want domain.ErrorResponse", result.Content)
	}
	if errResp.Type != "error" {
		t.Errorf("type = %q, want error", errResp.Type)
	}
}

type panickingDevices struct{}

func (p *panickingDevices) Run(ctx context.Context, interactionID, message, token, locationID string) (string, error) {
	panic("boom")
}
