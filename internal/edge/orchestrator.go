package edge

import (
	"context"
	"log/slog"
	"time"

	"github.com/54b3r/energy-assistant/internal/classifier"
	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/history"
)

// Result is what the orchestrator returns to the HTTP boundary: the
// category that was dispatched and the JSON-able response content.
type Result struct {
	InteractionID string
	Category      classifier.Category
	Content       interface{}
}

// Classifier is the subset of classifier.Classifier the orchestrator
// needs; an interface so tests can substitute a fake.
type Classifier interface {
	Classify(ctx context.Context, message string) classifier.Category
}

// DeviceRunner is the subset of DevicePipeline the orchestrator needs.
type DeviceRunner interface {
	Run(ctx context.Context, interactionID, message, token, locationID string) (string, error)
}

// EfficiencyRunner is the subset of EfficiencyPipeline the orchestrator needs.
type EfficiencyRunner interface {
	Run(ctx context.Context, question, interactionID string, topK int) (*domain.EnergyEfficiencyResponse, error)
}

// Orchestrator implements the Edge Orchestrator (spec 4.I): classify,
// dispatch to a pipeline, and persist conversation history around the
// turn.
type Orchestrator struct {
	history    *history.Manager
	classifier Classifier
	devices    DeviceRunner
	efficiency EfficiencyRunner
	log        *slog.Logger
}

// New constructs an Orchestrator.
func New(hist *history.Manager, cls Classifier, devices DeviceRunner, efficiency EfficiencyRunner, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{history: hist, classifier: cls, devices: devices, efficiency: efficiency, log: log}
}

// Process runs the full orchestration flow for a single incoming message.
func (o *Orchestrator) Process(ctx context.Context, message, token, locationID, userEmail string) Result {
	interactionID := history.GenerateInteractionID()
	path := o.history.GetActiveConversationPath(userEmail)

	if err := o.history.SaveMessage(path, domain.ConversationMessage{
		InteractionID: interactionID,
		Role:          domain.RoleUser,
		Content:       message,
		Timestamp:     time.Now(),
	}); err != nil {
		o.log.Warn("orchestrator: failed to persist user message", "error", err)
	}

	category := o.classifier.Classify(ctx, message)

	content := o.dispatch(ctx, category, interactionID, message, token, locationID)

	assistantContent := stringifyForHistory(content)
	if err := o.history.SaveMessage(path, domain.ConversationMessage{
		InteractionID: interactionID,
		Role:          domain.RoleAssistant,
		Content:       assistantContent,
		Timestamp:     time.Now(),
	}); err != nil {
		o.log.Warn("orchestrator: failed to persist assistant message", "error", err)
	}

	return Result{InteractionID: interactionID, Category: category, Content: content}
}

// dispatch routes to the appropriate pipeline and recovers any panic
// from within it into a standardized error response (spec 4.I step 6).
func (o *Orchestrator) dispatch(ctx context.Context, category classifier.Category, interactionID, message, token, locationID string) (content interface{}) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("orchestrator: pipeline panicked", "interaction_id", interactionID, "recovered", r)
			content = errorResponse(interactionID, "an unexpected error occurred")
		}
	}()

	switch category {
	case classifier.DeviceControl:
		text, err := o.devices.Run(ctx, interactionID, message, token, locationID)
		if err != nil {
			o.log.Error("orchestrator: device pipeline failed", "interaction_id", interactionID, "error", err)
			return errorResponse(interactionID, "device control failed")
		}
		return map[string]interface{}{
			"message":       text,
			"interactionId": interactionID,
			"type":          "text",
			"content":       []interface{}{},
		}

	case classifier.EnergyEfficiency:
		resp, err := o.efficiency.Run(ctx, message, interactionID, 3)
		if err != nil {
			o.log.Error("orchestrator: efficiency pipeline failed", "interaction_id", interactionID, "error", err)
			return errorResponse(interactionID, "energy efficiency answer failed")
		}
		return resp

	default:
		return classifier.RejectionResponse(interactionID)
	}
}

func errorResponse(interactionID, detail string) domain.ErrorResponse {
	return domain.ErrorResponse{
		Message:       "Something went wrong handling your request.",
		Type:          "error",
		Detail:        detail,
		InteractionID: interactionID,
	}
}

func stringifyForHistory(content interface{}) string {
	switch v := content.(type) {
	case *domain.EnergyEfficiencyResponse:
		return v.Message
	case domain.ErrorResponse:
		return v.Message
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}
