package alerts

import (
	"errors"
	"testing"

	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/protocol"
)

func TestDecodeArmDisarmNotification(t *testing.T) {
	ev, err := NewDecoder().Decode([]byte(`[170,[1,[3]]]` + "\x00"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != events.EventArmDisarm {
		t.Fatalf("type = %v", ev.Type)
	}
	if p := ev.Payload.(events.ArmDisarmPayload); p.State != events.ArmStateDisarm {
		t.Errorf("state = %v, want disarm", p.State)
	}
}

func TestDecodeSensorActivityNotification(t *testing.T) {
	ev, err := NewDecoder().Decode([]byte(`[170,[5,[100,"Hall"]]]` + "\x00"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != events.EventSensorActivity {
		t.Fatalf("type = %v", ev.Type)
	}
	p := ev.Payload.(events.SensorActivityPayload)
	if p.SensorID != 100 || p.SensorName != "Hall" {
		t.Errorf("payload = %+v", p)
	}
}

func TestDecodeDoorOpenWhenArming(t *testing.T) {
	ev, err := NewDecoder().Decode([]byte(`[170,[6,[100,"Hall"]]]` + "\x00"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != events.EventDoorOpenWhenArming {
		t.Fatalf("type = %v", ev.Type)
	}
	if p := ev.Payload.(events.DoorOpenClosePayload); !p.IsOpen || p.SensorName != "Hall" {
		t.Errorf("payload = %+v", p)
	}
}

func TestDecodeAlerts(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    events.EventType
		payload func(t *testing.T, payload interface{})
	}{
		{
			name: "door open",
			in:   `[208,[4,100,1,1,"Hall","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventDoorOpenClose,
			payload: func(t *testing.T, payload interface{}) {
				p := payload.(events.DoorOpenClosePayload)
				if !p.IsOpen || p.SensorID != 100 || p.SensorName != "Hall" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name: "door close",
			in:   `[208,[4,100,1,0,"Hall","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventDoorOpenClose,
			payload: func(t *testing.T, payload interface{}) {
				if p := payload.(events.DoorOpenClosePayload); p.IsOpen {
					t.Error("close reported as open")
				}
			},
		},
		{
			name: "doorbell press counts as open",
			in:   `[208,[4,100,12,0,"Door","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventDoorOpenClose,
			payload: func(t *testing.T, payload interface{}) {
				if p := payload.(events.DoorOpenClosePayload); !p.IsOpen {
					t.Error("doorbell press not reported as open")
				}
			},
		},
		{
			name: "remote button",
			in:   `[208,[4,11,10,2,"Remote","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventRemoteButton,
			payload: func(t *testing.T, payload interface{}) {
				p := payload.(events.RemoteButtonPayload)
				if p.Button != events.RemoteButtonDisarm {
					t.Errorf("button = %v, want disarm", p.Button)
				}
			},
		},
		{
			name: "low battery",
			in:   `[208,[4,100,1,4,"Hall","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventLowBattery,
			payload: func(t *testing.T, payload interface{}) {
				p := payload.(events.LowBatteryPayload)
				if p.SensorID != 100 || p.SensorName != "Hall" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name: "arm away state change",
			in:   `[208,[2,4,0,0,"","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventArmDisarm,
			payload: func(t *testing.T, payload interface{}) {
				p := payload.(events.ArmDisarmPayload)
				if p.State != events.ArmStateAway {
					t.Errorf("state = %v, want away", p.State)
				}
			},
		},
		{
			name: "wifi disconnected state change",
			in:   `[208,[2,8,0,0,"","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventStateChange,
			payload: func(t *testing.T, payload interface{}) {
				p := payload.(events.StateChangePayload)
				if p.Change != events.StateChangeWifiDisconnected {
					t.Errorf("change = %v", p.Change)
				}
				if p.Timestamp.Unix() != 1719223959 {
					t.Errorf("timestamp = %v", p.Timestamp)
				}
			},
		},
		{
			name: "alarm",
			in:   `[208,[3,100,1,1,"Hall","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventAlarm,
			payload: func(t *testing.T, payload interface{}) {
				p := payload.(events.AlarmPayload)
				if p.Tampered || p.SensorName != "Hall" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name: "tamper alarm",
			in:   `[208,[3,100,3,3,"Hall","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventAlarm,
			payload: func(t *testing.T, payload interface{}) {
				if p := payload.(events.AlarmPayload); !p.Tampered {
					t.Error("tamper source not flagged")
				}
			},
		},
		{
			name: "host SOS",
			in:   `[208,[1,1,0,0,"","GA18018B3030",1719223959,0,[""]]]`,
			want: events.EventSOS,
			payload: func(t *testing.T, payload interface{}) {
				if p := payload.(events.SOSPayload); !p.FromHost {
					t.Error("host SOS not flagged as host originated")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewDecoder().Decode([]byte(tt.in + "\x00"))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ev.Type != tt.want {
				t.Fatalf("type = %v, want %v", ev.Type, tt.want)
			}
			if ev.Source != events.SourceNotifications {
				t.Errorf("source = %q", ev.Source)
			}
			tt.payload(t, ev.Payload)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "no terminator", in: `[170,[1,[3]]]`, want: protocol.ErrFraming},
		{name: "not json", in: "garbage\x00", want: protocol.ErrDecoding},
		{name: "wrong arity", in: "[170]\x00", want: protocol.ErrDecoding},
		{name: "unknown message code", in: "[999,[1,[3]]]\x00", want: ErrUnknownMessage},
		{name: "unknown notification kind", in: "[170,[99,[3]]]\x00", want: ErrUnknownMessage},
		{name: "unknown alert type", in: `[208,[9,0,0,0,"","",0,0,[""]]]` + "\x00", want: ErrUnknownMessage},
		{name: "malformed arm data", in: `[170,[1,["x"]]]` + "\x00", want: protocol.ErrDecoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDecoder().Decode([]byte(tt.in)); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
