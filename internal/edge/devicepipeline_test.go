package edge

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
)

type fakeIntegrator struct {
	devices     []Device
	getErr      error
	controlErr  error
	sawToken    string
	sawDeviceID string
	sawCommand  map[string]interface{}
}

func (f *fakeIntegrator) GetDevices(ctx context.Context, token, locationID string) ([]Device, error) {
	f.sawToken = token
	return f.devices, f.getErr
}

func (f *fakeIntegrator) ControlDevice(ctx context.Context, token, locationID, deviceID string, command map[string]interface{}) error {
	f.sawToken = token
	f.sawDeviceID = deviceID
	f.sawCommand = command
	return f.controlErr
}

func TestExecuteGetDevicesForwardsTokenAndSerializesResult(t *testing.T) {
	integrator := &fakeIntegrator{devices: []Device{{ID: "d1", Name: "Lamp", Type: "light"}}}
	p := NewDevicePipeline(nil, integrator, nil)

	call := schema.ToolCall{
		ID:       "call1",
		Function: schema.FunctionCall{Name: "get_devices", Arguments: "{}"},
	}

	got := p.execute(context.Background(), call, "user-token", "loc1")

	if integrator.sawToken != "user-token" {
		t.Errorf("token forwarded = %q, want %q", integrator.sawToken, "user-token")
	}
	if got == "" || got[0] != '[' {
		t.Errorf("get_devices result = %q, want serialized JSON array", got)
	}
}

func TestExecuteControlDeviceForwardsArgsAndToken(t *testing.T) {
	integrator := &fakeIntegrator{}
	p := NewDevicePipeline(nil, integrator, nil)

	call := schema.ToolCall{
		ID: "call2",
		Function: schema.FunctionCall{
			Name:      "control_device",
			Arguments: `{"device_id":"d1","command":{"power":"on"}}`,
		},
	}

	got := p.execute(context.Background(), call, "user-token", "loc1")

	if integrator.sawToken != "user-token" {
		t.Errorf("token forwarded = %q, want %q", integrator.sawToken, "user-token")
	}
	if integrator.sawDeviceID != "d1" {
		t.Errorf("device id = %q, want d1", integrator.sawDeviceID)
	}
	if integrator.sawCommand["power"] != "on" {
		t.Errorf("command = %v", integrator.sawCommand)
	}
	if got != "ok: device d1 updated" {
		t.Errorf("result = %q", got)
	}
}

func TestExecuteControlDeviceReturnsErrorStringOnFailure(t *testing.T) {
	integrator := &fakeIntegrator{controlErr: errors.New("device offline")}
	p := NewDevicePipeline(nil, integrator, nil)

	call := schema.ToolCall{
		ID:       "call3",
		Function: schema.FunctionCall{Name: "control_device", Arguments: `{"device_id":"d1","command":{}}`},
	}

	got := p.execute(context.Background(), call, "tok", "loc1")
	if got == "" {
		t.Fatal("expected a non-empty error string, not a Go error")
	}
}

func TestExecuteUnknownToolReturnsErrorString(t *testing.T) {
	p := NewDevicePipeline(nil, &fakeIntegrator{}, nil)

	call := schema.ToolCall{ID: "call4", Function: schema.FunctionCall{Name: "delete_house", Arguments: "{}"}}
	got := p.execute(context.Background(), call, "tok", "loc1")

	if got != `error: unknown tool "delete_house"` {
		t.Errorf("got %q", got)
	}
}
