package cli

import (
	"context"
	"testing"

	"github.com/panelguard-project/panelguard/internal/config"
	"github.com/panelguard-project/panelguard/internal/events"
)

func TestSetConfigEmitsConfigChanged(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bus := events.NewEventBus()
	var got []events.Event
	bus.Subscribe(events.EventConfigChanged, "test", func(ctx context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})

	c := NewCLI(cfg, bus, nil, nil)
	if err := c.execute(context.Background(), "setconfig", []string{"host", "10.0.0.5"}); err != nil {
		t.Fatalf("setconfig: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("config_changed events = %d, want 1", len(got))
	}
	payload, ok := got[0].Payload.(events.ConfigChangedPayload)
	if !ok {
		t.Fatalf("payload type = %T, want ConfigChangedPayload", got[0].Payload)
	}
	if payload.Key != "host" || payload.Value != "10.0.0.5" {
		t.Errorf("payload = %+v, want host=10.0.0.5", payload)
	}
	if got[0].Source != "cli" {
		t.Errorf("source = %q, want cli", got[0].Source)
	}

	if cfg.GetPanel().Host != "10.0.0.5" {
		t.Errorf("panel host = %q, want 10.0.0.5", cfg.GetPanel().Host)
	}
}

func TestSetConfigUsage(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	bus := events.NewEventBus()
	c := NewCLI(cfg, bus, nil, nil)

	if err := c.execute(context.Background(), "setconfig", []string{"host"}); err == nil {
		t.Error("expected usage error for missing value")
	}
}
