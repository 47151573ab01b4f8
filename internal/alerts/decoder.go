// Package alerts decodes the push messages a panel sends over UDP and
// classifies them into domain events.
package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/protocol"
)

// Message codes of push datagrams.
const (
	MessageNotification = 170
	MessageAlert        = 208
)

// Notification kinds carried by code 170 messages.
const (
	NotifyArmDisarm          = 1
	NotifySensorChange       = 4
	NotifySensorActivity     = 5
	NotifyDoorOpenWhenArming = 6
)

// ErrUnknownMessage marks a structurally valid message the decoder has
// no classification for. Listeners log and drop these.
var ErrUnknownMessage = errors.New("alerts: unknown message")

// Alert is the 9 field record of a code 208 message, in wire order.
type Alert struct {
	Type     int
	EventID  int
	Source   int
	State    int
	ZoneName string
	DeviceID string
	UnixTime int64
	Resv4    json.RawMessage
	Other    json.RawMessage
}

// Decoder turns push datagrams into events.
type Decoder struct {
	log zerolog.Logger
}

func NewDecoder() *Decoder {
	return &Decoder{log: log.With().Str("component", "alerts").Logger()}
}

// Decode parses one push datagram and classifies it. The datagram is
// UTF-8 JSON of the form [code, data] with a trailing NUL.
func (d *Decoder) Decode(datagram []byte) (events.Event, error) {
	if len(datagram) == 0 || datagram[len(datagram)-1] != 0 {
		return events.Event{}, fmt.Errorf("%w: missing terminator", protocol.ErrFraming)
	}
	var outer []json.RawMessage
	if err := json.Unmarshal(datagram[:len(datagram)-1], &outer); err != nil {
		return events.Event{}, fmt.Errorf("%w: %v", protocol.ErrDecoding, err)
	}
	if len(outer) != 2 {
		return events.Event{}, fmt.Errorf("%w: expected [code, data], got %d elements",
			protocol.ErrDecoding, len(outer))
	}
	var code int
	if err := json.Unmarshal(outer[0], &code); err != nil {
		return events.Event{}, fmt.Errorf("%w: message code: %v", protocol.ErrDecoding, err)
	}
	switch code {
	case MessageNotification:
		return d.decodeNotification(outer[1])
	case MessageAlert:
		return d.decodeAlert(outer[1])
	}
	return events.Event{}, fmt.Errorf("%w: code %d", ErrUnknownMessage, code)
}

// decodeNotification handles code 170 messages: [kind, data].
func (d *Decoder) decodeNotification(raw json.RawMessage) (events.Event, error) {
	var inner []json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil || len(inner) != 2 {
		return events.Event{}, fmt.Errorf("%w: notification body", protocol.ErrDecoding)
	}
	var kind int
	if err := json.Unmarshal(inner[0], &kind); err != nil {
		return events.Event{}, fmt.Errorf("%w: notification kind: %v", protocol.ErrDecoding, err)
	}
	switch kind {
	case NotifyArmDisarm:
		var data []int
		if err := json.Unmarshal(inner[1], &data); err != nil || len(data) != 1 {
			return events.Event{}, fmt.Errorf("%w: arm/disarm notification", protocol.ErrDecoding)
		}
		return events.Event{
			Type:    events.EventArmDisarm,
			Source:  events.SourceNotifications,
			Payload: events.ArmDisarmPayload{State: events.ArmState(data[0])},
		}, nil
	case NotifySensorActivity, NotifySensorChange:
		id, name, err := decodeZoneInfo(inner[1])
		if err != nil {
			return events.Event{}, err
		}
		typ := events.EventSensorActivity
		if kind == NotifySensorChange {
			typ = events.EventSensorChange
		}
		return events.Event{
			Type:    typ,
			Source:  events.SourceNotifications,
			Payload: events.SensorActivityPayload{SensorID: id, SensorName: name},
		}, nil
	case NotifyDoorOpenWhenArming:
		id, name, err := decodeZoneInfo(inner[1])
		if err != nil {
			return events.Event{}, err
		}
		return events.Event{
			Type:    events.EventDoorOpenWhenArming,
			Source:  events.SourceNotifications,
			Payload: events.DoorOpenClosePayload{SensorID: id, SensorName: name, IsOpen: true},
		}, nil
	}
	return events.Event{}, fmt.Errorf("%w: notification kind %d", ErrUnknownMessage, kind)
}

// decodeAlert handles code 208 messages carrying the 9 field alert
// record.
func (d *Decoder) decodeAlert(raw json.RawMessage) (events.Event, error) {
	var alert Alert
	if err := protocol.UnmarshalRecord(raw, &alert); err != nil {
		return events.Event{}, err
	}
	return d.ClassifyAlert(alert)
}

// ClassifyAlert maps an alert record onto a domain event. History
// records converted to synthetic alerts pass through here as well, so
// live and replayed events get identical classification.
func (d *Decoder) ClassifyAlert(alert Alert) (events.Event, error) {
	switch events.AlertType(alert.Type) {
	case events.AlertSensorActivity:
		return d.classifySensorAlert(alert)
	case events.AlertStateChange:
		return classifyStateChange(alert)
	case events.AlertAlarm:
		return events.Event{
			Type:   events.EventAlarm,
			Source: events.SourceNotifications,
			Payload: events.AlarmPayload{
				SensorID:   alert.EventID,
				SensorName: alert.ZoneName,
				Tampered:   events.AlertSource(alert.Source) == events.AlertSourceTamper,
			},
		}, nil
	case events.AlertHostSOS:
		return events.Event{
			Type:    events.EventSOS,
			Source:  events.SourceNotifications,
			Payload: events.SOSPayload{EventID: alert.EventID, ZoneName: alert.ZoneName, FromHost: true},
		}, nil
	}
	return events.Event{}, fmt.Errorf("%w: alert type %d", ErrUnknownMessage, alert.Type)
}

// classifySensorAlert splits the overloaded sensor alert type into
// remote button, low battery, SOS and door open/close events.
func (d *Decoder) classifySensorAlert(alert Alert) (events.Event, error) {
	source := events.AlertSource(alert.Source)
	state := events.AlertState(alert.State)

	if source == events.AlertSourceRemote {
		return events.Event{
			Type:   events.EventRemoteButton,
			Source: events.SourceNotifications,
			Payload: events.RemoteButtonPayload{
				EventID:  alert.EventID,
				ZoneName: alert.ZoneName,
				Button:   events.RemoteButton(alert.State),
			},
		}, nil
	}
	if state == events.AlertStateLowBattery {
		return events.Event{
			Type:    events.EventLowBattery,
			Source:  events.SourceNotifications,
			Payload: events.LowBatteryPayload{SensorID: alert.EventID, SensorName: alert.ZoneName},
		}, nil
	}
	if state == events.AlertStateSOS {
		return events.Event{
			Type:    events.EventSOS,
			Source:  events.SourceNotifications,
			Payload: events.SOSPayload{EventID: alert.EventID, ZoneName: alert.ZoneName},
		}, nil
	}
	isOpen := (source == events.AlertSourceSensor && state == events.AlertStateDoorOpen) ||
		source == events.AlertSourceDoorbell
	return events.Event{
		Type:   events.EventDoorOpenClose,
		Source: events.SourceNotifications,
		Payload: events.DoorOpenClosePayload{
			SensorID:   alert.EventID,
			SensorName: alert.ZoneName,
			IsOpen:     isOpen,
		},
	}, nil
}

// classifyStateChange maps arm related state changes onto arm/disarm
// events and the rest onto plain state changes.
func classifyStateChange(alert Alert) (events.Event, error) {
	switch events.StateChangeType(alert.EventID) {
	case events.StateChangeArmAway:
		return armDisarmEvent(events.ArmStateAway), nil
	case events.StateChangeArmHome:
		return armDisarmEvent(events.ArmStateHome), nil
	case events.StateChangeDisarm:
		return armDisarmEvent(events.ArmStateDisarm), nil
	}
	change := events.StateChangeType(alert.EventID)
	if change < events.StateChangeACPowerFailure || change > events.StateChangeWifiDisconnected {
		return events.Event{}, fmt.Errorf("%w: state change %d", ErrUnknownMessage, alert.EventID)
	}
	return events.Event{
		Type:   events.EventStateChange,
		Source: events.SourceNotifications,
		Payload: events.StateChangePayload{
			Change:    change,
			Timestamp: time.Unix(alert.UnixTime, 0).UTC(),
		},
	}, nil
}

func armDisarmEvent(state events.ArmState) events.Event {
	return events.Event{
		Type:    events.EventArmDisarm,
		Source:  events.SourceNotifications,
		Payload: events.ArmDisarmPayload{State: state},
	}
}

func decodeZoneInfo(raw json.RawMessage) (int, string, error) {
	var zone []json.RawMessage
	if err := json.Unmarshal(raw, &zone); err != nil || len(zone) != 2 {
		return 0, "", fmt.Errorf("%w: zone info", protocol.ErrDecoding)
	}
	var id int
	var name string
	if err := json.Unmarshal(zone[0], &id); err != nil {
		return 0, "", fmt.Errorf("%w: zone index: %v", protocol.ErrDecoding, err)
	}
	if err := json.Unmarshal(zone[1], &name); err != nil {
		return 0, "", fmt.Errorf("%w: zone name: %v", protocol.ErrDecoding, err)
	}
	return id, name, nil
}
