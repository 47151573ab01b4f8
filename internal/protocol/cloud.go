package protocol

import (
	"encoding/binary"
	"fmt"
)

// Cloud protocol message commands.
const (
	CloudCmdHello        = 0x01
	CloudCmdStatusChange = 0x21
	CloudCmdNotification = 0x22
	CloudCmdHelloAck     = 0x41
	CloudCmdHelloInfo    = 0x63
	CloudCmdCommand      = 0x29
)

// Cloud protocol endpoint directions carried in the source and
// destination header bytes.
const (
	CloudDirDevice          = 0x10
	CloudDirCloud           = 0x20
	CloudDirDeviceDiscovery = 0x30
	CloudDirCloudDiscovery  = 0xD0
)

const (
	cloudHeaderSize          = 8
	cloudVersionedHeaderSize = 12

	// CloudProtocolVersion is the only header version the panels emit.
	CloudProtocolVersion = 1
)

// CloudEnvelope is one framed message of the TCP cloud protocol. The
// header length field covers the header itself, so Payload holds
// Length minus the header size bytes. Versioned messages additionally
// carry a protocol version and a response sequence number.
type CloudEnvelope struct {
	Command     byte
	Source      byte
	Flag1       byte
	Destination byte
	Versioned   bool
	Sequence    uint16
	Payload     []byte
}

// DecodeCloudEnvelope parses one envelope from the front of buf and
// reports how many bytes it consumed. It returns ErrShortRead when buf
// does not yet hold a complete frame; the caller keeps the bytes and
// retries after the next read. A stream can pack several envelopes per
// segment or split one across segments, so the consumed count is the
// only authority on frame boundaries.
func DecodeCloudEnvelope(buf []byte) (CloudEnvelope, int, error) {
	if len(buf) < cloudHeaderSize {
		return CloudEnvelope{}, 0, fmt.Errorf("%w: %d header bytes", ErrShortRead, len(buf))
	}
	length := int(int32(binary.LittleEndian.Uint32(buf[4:8])))
	if length < cloudHeaderSize {
		return CloudEnvelope{}, 0, fmt.Errorf("%w: declared length %d below header size", ErrFraming, length)
	}
	if len(buf) < length {
		return CloudEnvelope{}, 0, fmt.Errorf("%w: have %d of %d bytes", ErrShortRead, len(buf), length)
	}
	env := CloudEnvelope{
		Command:     buf[0],
		Source:      buf[1],
		Flag1:       buf[2],
		Destination: buf[3],
	}
	payloadStart := cloudHeaderSize
	if length >= cloudVersionedHeaderSize &&
		binary.LittleEndian.Uint16(buf[8:10]) == CloudProtocolVersion {
		env.Versioned = true
		env.Sequence = binary.LittleEndian.Uint16(buf[10:12])
		payloadStart = cloudVersionedHeaderSize
	}
	env.Payload = append([]byte(nil), buf[payloadStart:length]...)
	return env, length, nil
}

// EncodeCloudEnvelope renders an envelope back to wire bytes, computing
// the length field from the payload and header flavor.
func EncodeCloudEnvelope(env CloudEnvelope) []byte {
	headerSize := cloudHeaderSize
	if env.Versioned {
		headerSize = cloudVersionedHeaderSize
	}
	length := headerSize + len(env.Payload)
	buf := make([]byte, headerSize, length)
	buf[0] = env.Command
	buf[1] = env.Source
	buf[2] = env.Flag1
	buf[3] = env.Destination
	binary.LittleEndian.PutUint32(buf[4:8], uint32(length))
	if env.Versioned {
		binary.LittleEndian.PutUint16(buf[8:10], CloudProtocolVersion)
		binary.LittleEndian.PutUint16(buf[10:12], env.Sequence)
	}
	return append(buf, env.Payload...)
}
