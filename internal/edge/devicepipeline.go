package edge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const deviceControlSystemPrompt = `You control smart-home devices for the user at this location. Use get_devices to see what's available, and control_device to change device state. Interaction id: %s. Respond to the user in plain, friendly text describing what you did.`

var deviceTools = []*schema.ToolInfo{
	{
		Name: "get_devices",
		Desc: "List all smart-home devices at the current location.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	},
	{
		Name: "control_device",
		Desc: "Send a command to a single device, such as turning it on/off or setting a value.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"device_id": {Type: schema.String, Desc: "The id of the device to control.", Required: true},
			"command": {
				Type:     schema.Object,
				Desc:     "Arbitrary key/value command payload understood by the device, e.g. {\"power\":\"on\"}.",
				Required: true,
			},
		}),
	},
}

// DevicePipeline implements the Device-Control Pipeline (spec 4.J): a
// single tool-use round trip against the configured chat model.
type DevicePipeline struct {
	model      model.ToolCallingChatModel
	integrator Integrator
	log        *slog.Logger
}

// NewDevicePipeline constructs a DevicePipeline.
func NewDevicePipeline(chatModel model.ToolCallingChatModel, integrator Integrator, log *slog.Logger) *DevicePipeline {
	if log == nil {
		log = slog.Default()
	}
	return &DevicePipeline{model: chatModel, integrator: integrator, log: log}
}

// Run executes the pipeline: bind tool schemas, call the model, execute
// any returned tool calls against the integrator, call the model again
// with the tool results, and return the final assistant content
// verbatim.
func (p *DevicePipeline) Run(ctx context.Context, interactionID, message, token, locationID string) (string, error) {
	toolModel, err := p.model.WithTools(deviceTools)
	if err != nil {
		return "", fmt.Errorf("devicepipeline: bind tools: %w", err)
	}

	system := schema.SystemMessage(fmt.Sprintf(deviceControlSystemPrompt, interactionID))
	user := schema.UserMessage(message)

	assistantMsg, err := toolModel.Generate(ctx, []*schema.Message{system, user})
	if err != nil {
		return "", fmt.Errorf("devicepipeline: first generate: %w", err)
	}

	if len(assistantMsg.ToolCalls) == 0 {
		return assistantMsg.Content, nil
	}

	toolMessages := make([]*schema.Message, 0, len(assistantMsg.ToolCalls))
	for _, call := range assistantMsg.ToolCalls {
		content := p.execute(ctx, call, token, locationID)
		toolMessages = append(toolMessages, schema.ToolMessage(content, call.ID, schema.WithToolName(call.Function.Name)))
	}

	convo := []*schema.Message{system, user, assistantMsg}
	convo = append(convo, toolMessages...)

	final, err := toolModel.Generate(ctx, convo)
	if err != nil {
		return "", fmt.Errorf("devicepipeline: second generate: %w", err)
	}
	return final.Content, nil
}

// execute runs a single tool call against the integrator. It never
// returns an error: failures become a standardized error string in the
// tool message content, per spec 4.J ("the pipeline never raises due to
// tool errors").
func (p *DevicePipeline) execute(ctx context.Context, call schema.ToolCall, token, locationID string) string {
	switch call.Function.Name {
	case "get_devices":
		devices, err := p.integrator.GetDevices(ctx, token, locationID)
		if err != nil {
			p.log.Warn("devicepipeline: get_devices failed", "error", err)
			return fmt.Sprintf("error: get_devices failed: %v", err)
		}
		out, err := json.Marshal(devices)
		if err != nil {
			return fmt.Sprintf("error: get_devices result could not be serialized: %v", err)
		}
		return string(out)

	case "control_device":
		var args struct {
			DeviceID string                 `json:"device_id"`
			Command  map[string]interface{} `json:"command"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("error: malformed arguments for control_device: %v", err)
		}
		if err := p.integrator.ControlDevice(ctx, token, locationID, args.DeviceID, args.Command); err != nil {
			p.log.Warn("devicepipeline: control_device failed", "device_id", args.DeviceID, "error", err)
			return fmt.Sprintf("error: control_device failed: %v", err)
		}
		return fmt.Sprintf("ok: device %s updated", args.DeviceID)

	default:
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
}
