package classifier

import (
	"context"
	"errors"
	"testing"
)

type fakeCaller struct {
	response string
	err      error
}

func (f *fakeCaller) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func TestClassifyDeviceControl(t *testing.T) {
	c := New(&fakeCaller{response: "DEVICE_CONTROL"})
	if got := c.Classify(context.Background(), "turn off the lights"); got != DeviceControl {
		t.Errorf("got %s, want DEVICE_CONTROL", got)
	}
}

func TestClassifyEnergyEfficiency(t *testing.T) {
	c := New(&fakeCaller{response: "  energy_efficiency  "})
	if got := c.Classify(context.Background(), "how do I save energy?"); got != EnergyEfficiency {
		t.Errorf("got %s, want ENERGY_EFFICIENCY", got)
	}
}

func TestClassifyErrorYieldsOther(t *testing.T) {
	c := New(&fakeCaller{err: errors.New("network down")})
	if got := c.Classify(context.Background(), "hello"); got != Other {
		t.Errorf("got %s, want OTHER on error", got)
	}
}

func TestClassifyUnrecognizedYieldsOther(t *testing.T) {
	c := New(&fakeCaller{response: "I'm not sure what you mean"})
	if got := c.Classify(context.Background(), "asdf"); got != Other {
		t.Errorf("got %s, want OTHER", got)
	}
}
