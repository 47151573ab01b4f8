package notifications

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/panelguard-project/panelguard/internal/events"
)

func startListener(t *testing.T, bus *events.EventBus) (*Listener, *net.UDPAddr, context.CancelFunc) {
	t.Helper()
	l := NewListener("127.0.0.1:0", "", bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Listen(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Listen: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("listener did not stop")
		}
	})

	deadline := time.Now().Add(time.Second)
	for l.LocalAddr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("listener did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return l, l.LocalAddr().(*net.UDPAddr), cancel
}

func send(t *testing.T, addr *net.UDPAddr, payload string) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestListenerDispatchesEvents(t *testing.T) {
	bus := events.NewEventBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventArmDisarm, "test", func(ctx context.Context, ev events.Event) error {
		received <- ev
		return nil
	})

	_, addr, _ := startListener(t, bus)
	send(t, addr, `[170,[1,[2]]]`+"\x00")

	select {
	case ev := <-received:
		if p := ev.Payload.(events.ArmDisarmPayload); p.State != events.ArmStateHome {
			t.Errorf("state = %v, want home", p.State)
		}
	case <-time.After(time.Second):
		t.Fatal("no event dispatched")
	}
}

func TestListenerSurvivesBadDatagrams(t *testing.T) {
	bus := events.NewEventBus()
	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventSensorActivity, "test", func(ctx context.Context, ev events.Event) error {
		received <- ev
		return nil
	})

	_, addr, _ := startListener(t, bus)
	send(t, addr, "garbage")
	send(t, addr, `[170,[1,[2]]]`)     // valid but missing terminator
	send(t, addr, `[999,[7,[]]]`+"\x00") // unknown message code
	send(t, addr, `[170,[5,[100,"Hall"]]]`+"\x00")

	select {
	case ev := <-received:
		p := ev.Payload.(events.SensorActivityPayload)
		if p.SensorID != 100 || p.SensorName != "Hall" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("listener stopped processing after bad datagrams")
	}
}
