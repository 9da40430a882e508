// Package generation implements the Generation & Validation component:
// prompt rendering, the LLM call, strict-schema JSON extraction with a
// one-retry + balanced-brace fallback, and EnergyEfficiencyResponse
// validation.
package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/llm"
)

// ContextDoc is one retrieved document rendered into the {{CONTEXT}}
// placeholder.
type ContextDoc struct {
	SourceID string  `json:"sourceId"`
	Chunk    string  `json:"chunk"`
	Score    float64 `json:"score"`
}

// Generator renders the system prompt, calls the LLM, and validates the
// response against EnergyEfficiencyResponse.
type Generator struct {
	promptTemplate        string
	allowGeneralKnowledge bool
	caller                llm.Caller
	log                   *slog.Logger
}

// LoadPromptTemplate reads the system prompt template from path once at
// process start, per spec 4.F.
func LoadPromptTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("generation: read prompt template %s: %w", path, err)
	}
	return string(data), nil
}

// New constructs a Generator.
func New(promptTemplate string, allowGeneralKnowledge bool, caller llm.Caller, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{promptTemplate: promptTemplate, allowGeneralKnowledge: allowGeneralKnowledge, caller: caller, log: log}
}

// Answer runs answer(question, interactionId, topK) and returns the
// parsed EnergyEfficiencyResponse after schema validation.
func (g *Generator) Answer(ctx context.Context, question, interactionID string, topK int, contextDocs []ContextDoc) (*domain.EnergyEfficiencyResponse, error) {
	empty := len(contextDocs) == 0
	fallbackPolicy := g.fallbackPolicy(empty)

	contextJSON, err := json.Marshal(contextDocs)
	if err != nil {
		return nil, fmt.Errorf("generation: marshal context: %w", err)
	}

	system := render(g.promptTemplate, map[string]string{
		"CONTEXT":         string(contextJSON),
		"INTERACTION_ID":  interactionID,
		"TOP_K":           strconv.Itoa(topK),
		"QUESTION":        question,
		"FALLBACK_POLICY": fallbackPolicy,
	})

	guidance := strictGuidance
	if g.allowGeneralKnowledge && empty {
		guidance = generalKnowledgeGuidance
	}

	raw, err := g.caller.Call(ctx, system, guidance)
	if err != nil {
		return nil, fmt.Errorf("generation: llm call failed: %w", err)
	}

	resp, err := g.extractAndValidate(ctx, raw, system, interactionID)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

const strictGuidance = "Answer strictly from the provided context. If the context is insufficient, acknowledge that and return an empty content list. Respond with a single JSON object only."
const generalKnowledgeGuidance = "No context was retrieved. Provide a brief general-knowledge answer and return an empty content list. Respond with a single JSON object only."

func (g *Generator) fallbackPolicy(empty bool) string {
	if g.allowGeneralKnowledge && empty {
		return "General knowledge answers are permitted when context is empty; content must be an empty list."
	}
	return "Context is required; if insufficient, acknowledge it explicitly and return an empty content list."
}

const retrySystem = "Your previous response was not valid JSON. Return ONLY a single JSON object matching the required schema, with no prose or markdown fences."

// extractAndValidate performs spec 4.F's two-stage JSON extraction with
// one retry, then a final balanced-brace extraction attempt.
func (g *Generator) extractAndValidate(ctx context.Context, raw, system, interactionID string) (*domain.EnergyEfficiencyResponse, error) {
	if resp, err := tryParse(raw, interactionID); err == nil {
		return resp, nil
	}

	g.log.Warn("generation: initial response was not valid JSON, retrying once", "interaction_id", interactionID)
	retryRaw, err := g.caller.Call(ctx, system+"\n\n"+retrySystem, retrySystem)
	if err == nil {
		if resp, perr := tryParse(retryRaw, interactionID); perr == nil {
			return resp, nil
		}
		raw = retryRaw
	}

	balanced := balancedBraceExtract(raw)
	if balanced == "" {
		return nil, fmt.Errorf("generation: response did not contain a parseable JSON object after retry")
	}
	resp, err := tryParse(balanced, interactionID)
	if err != nil {
		return nil, fmt.Errorf("generation: response invalid after balanced-brace extraction: %w", err)
	}
	return resp, nil
}

// tryParse strips any fenced block, extracts the substring between the
// first '{' and the last '}', parses it, and validates the schema.
func tryParse(raw, interactionID string) (*domain.EnergyEfficiencyResponse, error) {
	text := stripFencedBlock(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("generation: no JSON object found")
	}
	candidate := text[start : end+1]

	var resp domain.EnergyEfficiencyResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		return nil, fmt.Errorf("generation: json parse: %w", err)
	}
	if resp.InteractionID == "" {
		resp.InteractionID = interactionID
	}
	if resp.Type == "" {
		resp.Type = "text"
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("generation: schema validation: %w", err)
	}
	return &resp, nil
}

// balancedBraceExtract scans for the first '{' and returns the substring
// up to its matching closing '}', honoring nested braces and ignoring
// braces inside string literals. Returns "" if no balanced object is
// found.
func balancedBraceExtract(raw string) string {
	text := stripFencedBlock(raw)
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func stripFencedBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// render substitutes {{KEY}} placeholders in template with values from
// vars.
func render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
