// Package events defines event types and enumerations for the PanelGuard
// event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Panel state events
	EventArmDisarm          EventType = "arm_disarm"
	EventAlarm              EventType = "alarm"
	EventSOS                EventType = "sos"
	EventSensorActivity     EventType = "sensor_activity"
	EventSensorChange       EventType = "sensor_change"
	EventDoorOpenClose      EventType = "door_open_close"
	EventDoorOpenWhenArming EventType = "door_open_when_arming"
	EventLowBattery         EventType = "low_battery"
	EventRemoteButton       EventType = "remote_button_press"
	EventStateChange        EventType = "state_change"

	// Cloud connection events
	EventCloudConnected    EventType = "cloud_connected"
	EventCloudDisconnected EventType = "cloud_disconnected"
	EventCloudHello        EventType = "cloud_hello"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// Event source names. Events from different sources carry no mutual
// ordering guarantee; only per-source ordering is preserved.
const (
	SourceNotifications = "notifications"
	SourceCloud         = "cloud"
	SourceHistory       = "history"
)

// ArmState represents the arm/disarm state of the panel, both for setting
// the state and as received in notifications.
type ArmState int

const (
	ArmStateAway    ArmState = 1
	ArmStateHome    ArmState = 2
	ArmStateDisarm  ArmState = 3
	ArmStateAlarmed ArmState = 4
)

// armStateStrings maps ArmState values to their lowercase JSON representation.
var armStateStrings = map[ArmState]string{
	ArmStateAway:    "arm_away",
	ArmStateHome:    "arm_home",
	ArmStateDisarm:  "disarm",
	ArmStateAlarmed: "alarmed",
}

// String returns the string representation of ArmState.
func (s ArmState) String() string {
	if str, ok := armStateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes ArmState as a JSON string (e.g. "arm_away").
func (s ArmState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// AlertType classifies alert messages (code 208) from the panel.
type AlertType int

const (
	AlertHostSOS        AlertType = 1
	AlertStateChange    AlertType = 2
	AlertAlarm          AlertType = 3
	AlertSensorActivity AlertType = 4
)

// AlertSource identifies what produced an alert.
type AlertSource int

const (
	AlertSourceDevice      AlertSource = 0
	AlertSourceSensor      AlertSource = 1
	AlertSourceTamper      AlertSource = 3
	AlertSourceRemote      AlertSource = 10
	AlertSourceRFID        AlertSource = 11
	AlertSourceDoorbell    AlertSource = 12
	AlertSourceFingerprint AlertSource = 15
)

// AlertState carries the state value of an alert.
type AlertState int

const (
	AlertStateDoorClose  AlertState = 0
	AlertStateDoorOpen   AlertState = 1
	AlertStateSOS        AlertState = 2
	AlertStateTamper     AlertState = 3
	AlertStateLowBattery AlertState = 4
	AlertStateAlarm      AlertState = 254
)

// StateChangeType enumerates panel state-change alerts.
type StateChangeType int

const (
	StateChangeACPowerFailure   StateChangeType = 1
	StateChangeACPowerRecover   StateChangeType = 2
	StateChangeDisarm           StateChangeType = 3
	StateChangeArmAway          StateChangeType = 4
	StateChangeArmHome          StateChangeType = 5
	StateChangeLowBattery       StateChangeType = 6
	StateChangeWifiConnected    StateChangeType = 7
	StateChangeWifiDisconnected StateChangeType = 8
)

// stateChangeStrings maps StateChangeType values to readable names.
var stateChangeStrings = map[StateChangeType]string{
	StateChangeACPowerFailure:   "ac_power_failure",
	StateChangeACPowerRecover:   "ac_power_recover",
	StateChangeDisarm:           "disarm",
	StateChangeArmAway:          "arm_away",
	StateChangeArmHome:          "arm_home",
	StateChangeLowBattery:       "low_battery",
	StateChangeWifiConnected:    "wifi_connected",
	StateChangeWifiDisconnected: "wifi_disconnected",
}

// String returns the string representation of StateChangeType.
func (s StateChangeType) String() string {
	if str, ok := stateChangeStrings[s]; ok {
		return str
	}
	return "unknown"
}

// RemoteButton enumerates remote control button presses.
type RemoteButton int

const (
	RemoteButtonArmAway RemoteButton = 0
	RemoteButtonArmHome RemoteButton = 1
	RemoteButtonDisarm  RemoteButton = 2
	RemoteButtonSOS     RemoteButton = 3
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// ArmDisarmPayload carries a panel arm/disarm transition.
type ArmDisarmPayload struct {
	State ArmState
}

// SensorActivityPayload carries a sensor trigger.
type SensorActivityPayload struct {
	SensorID   int
	SensorName string
}

// DoorOpenClosePayload carries a door open or close event.
type DoorOpenClosePayload struct {
	SensorID   int
	SensorName string
	IsOpen     bool
}

// AlarmPayload carries a triggered alarm.
type AlarmPayload struct {
	SensorID   int
	SensorName string
	Tampered   bool
}

// SOSPayload carries a panic/SOS alert.
type SOSPayload struct {
	EventID  int
	ZoneName string
	FromHost bool
}

// LowBatteryPayload carries a sensor low-battery alert.
type LowBatteryPayload struct {
	SensorID   int
	SensorName string
}

// RemoteButtonPayload carries a remote control button press.
type RemoteButtonPayload struct {
	EventID  int
	ZoneName string
	Button   RemoteButton
}

// StateChangePayload carries panel state changes that are not arm/disarm
// transitions (power, wifi, battery).
type StateChangePayload struct {
	Change    StateChangeType
	Timestamp time.Time
}

// CloudHelloPayload carries the device identity from a cloud hello message.
type CloudHelloPayload struct {
	DeviceID        string
	FirmwareVersion string
	Discovery       bool
}

// CloudConnectionPayload carries cloud connection lifecycle details.
type CloudConnectionPayload struct {
	RemoteAddr string
	Chained    bool
}

// ConfigChangedPayload identifies a configuration field updated at runtime.
type ConfigChangedPayload struct {
	Key   string
	Value string
}
