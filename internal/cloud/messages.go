// Package cloud implements the TCP server panels connect to when their
// cloud traffic is redirected here. It can simulate the vendor cloud
// (standalone mode) or sit between the panel and the real cloud as a
// transparent relay (chained mode), decoding traffic either way.
package cloud

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/panelguard-project/panelguard/internal/protocol"
)

// Kind identifies a decoded device message.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPing is the keepalive with a basic header and no payload.
	KindPing
	// KindHello is the periodic identity heartbeat.
	KindHello
	// KindDiscoveryHello is the hello sent while the panel searches for
	// its cloud server.
	KindDiscoveryHello
	// KindStatusChange is a panel state transition.
	KindStatusChange
	// KindSensorStatus is a sensor trigger report.
	KindSensorStatus
	// KindAlarmStatus is an alarm report.
	KindAlarmStatus
	// KindNotification wraps a local-format push message.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindHello:
		return "hello"
	case KindDiscoveryHello:
		return "discovery_hello"
	case KindStatusChange:
		return "status_change"
	case KindSensorStatus:
		return "sensor_status"
	case KindAlarmStatus:
		return "alarm_status"
	case KindNotification:
		return "notification"
	}
	return "unknown"
}

// Wire sizes of the fixed-layout payloads.
const (
	helloPayloadSize     = 60
	discoveryPayloadSize = 48
	statusPayloadSize    = 108
)

// Message is one decoded device-to-cloud message.
type Message struct {
	Kind     Kind
	Envelope protocol.CloudEnvelope

	// Hello and discovery hello fields.
	GUID            string
	FirmwareVersion string

	// Status change fields.
	StatusType  int
	StateChange int
	SensorID    int
	SensorType  int
	SensorState int
	SensorName  string
	UnixTime    int64

	// Notification payload in local wire format, NUL terminated.
	Notification []byte
}

// DecodeMessage classifies a device envelope. Unknown but well-framed
// messages come back with KindUnknown and no error so the caller can
// skip them by envelope length.
func DecodeMessage(env protocol.CloudEnvelope) (Message, error) {
	msg := Message{Kind: KindUnknown, Envelope: env}
	switch env.Command {
	case protocol.CloudCmdHello:
		switch {
		case env.Source == protocol.CloudDirDevice && env.Destination == 0 && len(env.Payload) == 0:
			msg.Kind = KindPing
			return msg, nil
		case env.Source == protocol.CloudDirDevice && env.Destination == protocol.CloudDirCloud:
			return decodeHello(msg, env.Payload, helloPayloadSize, KindHello)
		case env.Source == protocol.CloudDirDeviceDiscovery && env.Destination == protocol.CloudDirCloud:
			return decodeHello(msg, env.Payload, discoveryPayloadSize, KindDiscoveryHello)
		}
	case protocol.CloudCmdStatusChange:
		if env.Source == protocol.CloudDirDevice && env.Destination == protocol.CloudDirCloud {
			return decodeStatusChange(msg, env.Payload)
		}
	case protocol.CloudCmdNotification:
		if env.Source == protocol.CloudDirDevice && env.Destination == protocol.CloudDirCloud {
			msg.Kind = KindNotification
			msg.Notification = env.Payload
			return msg, nil
		}
	}
	return msg, nil
}

// decodeHello extracts GUID and firmware version. Both hello flavors
// start with a 16 byte NUL padded GUID, four int32 flags and a 4 byte
// firmware version field; they differ in trailing flag count only.
func decodeHello(msg Message, payload []byte, size int, kind Kind) (Message, error) {
	if len(payload) < size {
		return msg, fmt.Errorf("%w: hello payload %d bytes, want %d",
			protocol.ErrDecoding, len(payload), size)
	}
	msg.Kind = kind
	msg.GUID = cstring(payload[0:16])
	msg.FirmwareVersion = cstring(payload[32:36])
	return msg, nil
}

// decodeStatusChange splits the three status change forms. All are 108
// bytes; the first byte distinguishes plain state changes (type 2) from
// sensor (type 4) and alarm (type 3) reports.
func decodeStatusChange(msg Message, payload []byte) (Message, error) {
	if len(payload) < statusPayloadSize {
		return msg, fmt.Errorf("%w: status payload %d bytes, want %d",
			protocol.ErrDecoding, len(payload), statusPayloadSize)
	}
	msg.StatusType = int(payload[0])
	switch msg.StatusType {
	case 2:
		msg.Kind = KindStatusChange
		msg.StateChange = int(payload[1])
		msg.UnixTime = int64(int32(binary.LittleEndian.Uint32(payload[36:40])))
	case 3, 4:
		if msg.StatusType == 3 {
			msg.Kind = KindAlarmStatus
		} else {
			msg.Kind = KindSensorStatus
		}
		msg.SensorID = int(payload[1])
		msg.SensorType = int(payload[2])
		msg.SensorState = int(payload[3])
		msg.SensorName = cstring(payload[4:36])
		msg.UnixTime = int64(int32(binary.LittleEndian.Uint32(payload[36:40])))
	default:
		return msg, fmt.Errorf("%w: status change type %d", protocol.ErrDecoding, msg.StatusType)
	}
	return msg, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
