package generation

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeCaller struct {
	responses []string
	calls     int
}

func (f *fakeCaller) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	r := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return r, nil
}

func TestAnswerHappyPath(t *testing.T) {
	caller := &fakeCaller{responses: []string{`{"message":"save energy by doing X","content":[]}`}}
	gen := New("question: {{QUESTION}} context: {{CONTEXT}}", true, caller, nil)

	resp, err := gen.Answer(context.Background(), "save energy", "id-1", 3, nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.InteractionID != "id-1" {
		t.Errorf("interactionId = %q, want id-1", resp.InteractionID)
	}
	if resp.Type != "text" {
		t.Errorf("type = %q, want text", resp.Type)
	}
}

func TestAnswerRetriesOnInvalidJSONThenSucceeds(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		"not json at all",
		`{"message":"ok","content":[]}`,
	}}
	gen := New("{{QUESTION}}", true, caller, nil)

	resp, err := gen.Answer(context.Background(), "q", "id-2", 3, nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if resp.Message != "ok" {
		t.Errorf("message = %q, want ok", resp.Message)
	}
}

func TestBalancedBraceExtractIgnoresBracesInStrings(t *testing.T) {
	raw := `prefix {"message":"has a } brace inside","interactionId":"x","type":"text","content":[]} suffix`
	got := balancedBraceExtract(raw)
	if got == "" {
		t.Fatal("expected non-empty balanced extraction")
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(got), &resp); err != nil {
		t.Fatalf("parse extracted json: %v", err)
	}
}
