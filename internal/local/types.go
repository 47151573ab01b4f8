package local

import (
	"strconv"
	"time"

	"github.com/panelguard-project/panelguard/internal/events"
)

// Local protocol command codes. The list covers the commands the client
// implements plus the neighbors worth naming; panels understand more.
const (
	CmdGetHostStatus = 100
	CmdSetHostStatus = 101
	CmdGetSensorList = 102
	CmdGetHostConfig = 106
	CmdControlDevice = 137
	CmdGetDeviceList = 138
	CmdGetHistory    = 200
	CmdGetHostInfo   = 206
)

// ModuleStatus is the state of the panel's GSM or WiFi module as
// reported by host info.
type ModuleStatus int

const (
	ModulePoweredOff  ModuleStatus = 0
	ModuleNotReady    ModuleStatus = 1
	ModuleNoSignal    ModuleStatus = 2
	ModuleOperational ModuleStatus = 3
)

func (s ModuleStatus) String() string {
	switch s {
	case ModulePoweredOff:
		return "powered_off"
	case ModuleNotReady:
		return "not_ready"
	case ModuleNoSignal:
		return "no_signal"
	case ModuleOperational:
		return "operational"
	}
	return "unknown"
}

// HostInfo is the GETHOSTINFO payload, in wire field order.
type HostInfo struct {
	GUID                 string
	ProductName          string
	WifiProtocolVersion  string
	CloudProtocolVersion string
	MCUHardwareVersion   string
	WifiHardwareVersion  string
	GSMStatusData        int
	WifiStatusData       int
	Reserved1            int
	Reserved2            int
	BandFrequency        string
	GSMSignalLevel       int
	WifiSignalLevel      int
}

func (h HostInfo) GSMStatus() ModuleStatus  { return ModuleStatus(h.GSMStatusData) }
func (h HostInfo) WifiStatus() ModuleStatus { return ModuleStatus(h.WifiStatusData) }

// HostStatus is the GETHOSTSTATUS payload, in wire field order.
type HostStatus struct {
	StatusData          int
	HostPhoneNumber     string
	ProductName         string
	MCUHardwareVersion  string
	WifiHardwareVersion string
}

// ArmState translates the raw status field.
func (h HostStatus) ArmState() events.ArmState { return events.ArmState(h.StatusData) }

// Sensor user flag bits.
const (
	SensorFlagEnabled              = 1 << 0
	SensorFlagArmDelay             = 1 << 1
	SensorFlagDetectDoor           = 1 << 2
	SensorFlagDoorChime            = 1 << 3
	SensorFlagIndependentZone      = 1 << 4
	SensorFlagAlertWhenAwayAndHome = 1 << 5
	SensorFlagAlertWhenAway        = 1 << 6
)

// Sensor is one GETSENSORLIST record, in wire field order. Relay
// devices from GETDEVICELIST share the same shape.
type Sensor struct {
	ParentName   string
	Index        int
	RoomID       int
	TypeID       int
	Subtype      int
	Timeout      int
	UserFlagData int
	Baudrate     int
	ProtocolID   int
	ReservedData int
	NodeCount    int
	Mask         int
	PrivateData  string

	// ProtoIndex is the record's 1-based position in the panel's list,
	// assigned during pagination rather than carried on the wire.
	ProtoIndex int `json:"-"`
}

// Enabled reports whether the panel has the sensor active.
func (s Sensor) Enabled() bool { return s.UserFlagData&SensorFlagEnabled != 0 }

// Device is a controllable relay. Multi-node relays expose one Device
// per node, distinguished by Subindex.
type Device struct {
	Sensor
	Subindex int
}

// Name returns the device name, qualified with the node number for
// multi-node relays.
func (d Device) Name() string {
	if d.NodeCount > 1 {
		return d.ParentName + "#" + strconv.Itoa(d.Subindex+1)
	}
	return d.ParentName
}

// HistoryState is the unified state of a history record. Wire records
// mix alert states and state change types depending on the record
// type; Decode maps both onto this enum.
type HistoryState int

const (
	HistoryDoorClose       HistoryState = 1
	HistoryDoorOpen        HistoryState = 2
	HistoryTamper          HistoryState = 3
	HistoryAlarm           HistoryState = 4
	HistoryACPowerFailure  HistoryState = 5
	HistoryACPowerRecover  HistoryState = 6
	HistoryDisarm          HistoryState = 7
	HistoryArmAway         HistoryState = 8
	HistoryArmHome         HistoryState = 9
	HistoryLowBattery      HistoryState = 10
	HistoryWifiConnected   HistoryState = 11
	HistoryWifiDisconnect  HistoryState = 12
)

func (s HistoryState) String() string {
	switch s {
	case HistoryDoorClose:
		return "door_close"
	case HistoryDoorOpen:
		return "door_open"
	case HistoryTamper:
		return "tamper"
	case HistoryAlarm:
		return "alarm"
	case HistoryACPowerFailure:
		return "ac_power_failure"
	case HistoryACPowerRecover:
		return "ac_power_recover"
	case HistoryDisarm:
		return "disarm"
	case HistoryArmAway:
		return "arm_away"
	case HistoryArmHome:
		return "arm_home"
	case HistoryLowBattery:
		return "low_battery"
	case HistoryWifiConnected:
		return "wifi_connected"
	case HistoryWifiDisconnect:
		return "wifi_disconnected"
	}
	return "unknown"
}

// HistoryEntry is one GETHISTORY record, in wire field order.
type HistoryEntry struct {
	Type       int
	EventID    int
	SourceData int
	StateData  int
	SensorName string
	UnixTime   int64
	Other      string

	// Index is the record's 1-based protocol position, assigned during
	// pagination. Lower index means more recent.
	Index int `json:"-"`
}

// Time returns the entry timestamp in UTC.
func (h HistoryEntry) Time() time.Time { return time.Unix(h.UnixTime, 0).UTC() }

// State maps the wire fields onto the unified history state. Door
// events carry an alert state in the state field; state changes and
// the remaining types carry a state change type in the event id field.
func (h HistoryEntry) State() HistoryState {
	switch events.AlertType(h.Type) {
	case events.AlertSensorActivity:
		switch events.AlertState(h.StateData) {
		case events.AlertStateDoorClose:
			return HistoryDoorClose
		case events.AlertStateDoorOpen:
			return HistoryDoorOpen
		case events.AlertStateTamper:
			return HistoryTamper
		case events.AlertStateLowBattery:
			return HistoryLowBattery
		}
		return 0
	case events.AlertAlarm:
		return HistoryAlarm
	}
	switch events.StateChangeType(h.EventID) {
	case events.StateChangeACPowerFailure:
		return HistoryACPowerFailure
	case events.StateChangeACPowerRecover:
		return HistoryACPowerRecover
	case events.StateChangeDisarm:
		return HistoryDisarm
	case events.StateChangeArmAway:
		return HistoryArmAway
	case events.StateChangeArmHome:
		return HistoryArmHome
	case events.StateChangeLowBattery:
		return HistoryLowBattery
	case events.StateChangeWifiConnected:
		return HistoryWifiConnected
	case events.StateChangeWifiDisconnected:
		return HistoryWifiDisconnect
	}
	return 0
}

// Source maps the wire fields onto an alert source. Alarms are taken
// to come from a sensor; types without an explicit source are assumed
// to originate in the panel itself.
func (h HistoryEntry) Source() events.AlertSource {
	switch events.AlertType(h.Type) {
	case events.AlertStateChange, events.AlertSensorActivity:
		return events.AlertSource(h.SourceData)
	case events.AlertAlarm:
		return events.AlertSourceSensor
	}
	return events.AlertSourceDevice
}

