// Package classifier implements the Classifier component: three-way
// category inference over a user message (device / efficiency / other).
package classifier

import (
	"context"
	"strings"

	"github.com/54b3r/energy-assistant/internal/llm"
)

// Category is one of the three dispatch categories.
type Category string

const (
	DeviceControl    Category = "DEVICE_CONTROL"
	EnergyEfficiency Category = "ENERGY_EFFICIENCY"
	Other            Category = "OTHER"
)

const systemPrompt = `Classify the user's message into exactly one category: DEVICE_CONTROL (controlling or querying a smart-home device), ENERGY_EFFICIENCY (a question about saving energy or efficiency tips), or OTHER (anything else). Respond with only the category name.`

// Classifier calls a small LLM to classify a message. Any parse or
// network error yields Other, the safe fallback (spec 4.H).
type Classifier struct {
	caller llm.Caller
}

// New constructs a Classifier.
func New(caller llm.Caller) *Classifier {
	return &Classifier{caller: caller}
}

// Classify returns one of DeviceControl, EnergyEfficiency, or Other. It
// never returns an error: any failure classifies as Other.
func (c *Classifier) Classify(ctx context.Context, message string) Category {
	raw, err := c.caller.Call(ctx, systemPrompt, message)
	if err != nil {
		return Other
	}
	return parseCategory(raw)
}

// parseCategory uppercases the response and matches by substring
// containment, checked in a fixed order (DEVICE_CONTROL, then
// ENERGY_EFFICIENCY) so a response mentioning both terms resolves
// deterministically.
func parseCategory(raw string) Category {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, string(DeviceControl)):
		return DeviceControl
	case strings.Contains(upper, string(EnergyEfficiency)):
		return EnergyEfficiency
	default:
		return Other
	}
}

// RejectionResponse returns the static rejection JSON for an OTHER
// classification, parameterized by interactionId.
func RejectionResponse(interactionID string) map[string]interface{} {
	return map[string]interface{}{
		"message":       "I can help with smart-home device control or energy-efficiency questions. Could you rephrase your request?",
		"interactionId": interactionID,
		"type":          "text",
		"content":       []interface{}{},
	}
}
