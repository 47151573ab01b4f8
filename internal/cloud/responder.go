package cloud

import (
	"encoding/binary"
	"time"

	"github.com/panelguard-project/panelguard/internal/protocol"
)

// Vendor cloud endpoint the panels are provisioned with. Standalone
// discovery responses advertise this address so redirected panels keep
// resolving to the relay.
const (
	VendorCloudHost = "47.88.7.61"
	VendorCloudPort = 5678
)

// ResponseContext carries per-connection facts a responder may embed in
// its replies.
type ResponseContext struct {
	// LocalPort is the port this server accepted the connection on.
	LocalPort int
	// CloudHost and CloudPort are advertised in discovery responses.
	CloudHost string
	CloudPort int
}

// Responder produces the wire replies for a device message in
// standalone mode. Implementations return one byte slice per reply
// frame, already sequenced.
type Responder interface {
	Respond(msg Message, ctx ResponseContext) [][]byte
}

// simulatedCloud answers the way the vendor cloud does, which keeps the
// panel content enough to stay connected and keep pushing events.
type simulatedCloud struct {
	now func() time.Time
}

// NewSimulatedCloud returns the default standalone responder.
func NewSimulatedCloud() Responder {
	return &simulatedCloud{now: time.Now}
}

func (s *simulatedCloud) Respond(msg Message, ctx ResponseContext) [][]byte {
	switch msg.Kind {
	case KindPing:
		return [][]byte{s.pingResp()}
	case KindHello:
		return s.helloResponses(ctx)
	case KindDiscoveryHello:
		return [][]byte{s.discoveryResp(ctx)}
	}
	return nil
}

// pingResp mirrors the keepalive back with a basic header.
func (s *simulatedCloud) pingResp() []byte {
	return protocol.EncodeCloudEnvelope(protocol.CloudEnvelope{
		Command:     protocol.CloudCmdHello,
		Source:      protocol.CloudDirDevice,
		Destination: 0,
	})
}

// helloResponses is the three frame acknowledgement sequence for a
// hello heartbeat: ack, response flag and the info frame naming the
// port to keep using. Multi-frame responses number their sequences
// from 1.
func (s *simulatedCloud) helloResponses(ctx ResponseContext) [][]byte {
	ack := protocol.EncodeCloudEnvelope(protocol.CloudEnvelope{
		Command:     protocol.CloudCmdHelloAck,
		Source:      protocol.CloudDirCloud,
		Destination: protocol.CloudDirDevice,
		Versioned:   true,
		Sequence:    1,
		Payload:     []byte{0x01},
	})
	resp := protocol.EncodeCloudEnvelope(protocol.CloudEnvelope{
		Command:     protocol.CloudCmdHello,
		Source:      protocol.CloudDirCloud,
		Destination: protocol.CloudDirDevice,
		Versioned:   true,
		Sequence:    2,
		Payload:     []byte{0x1f},
	})
	port := make([]byte, 4)
	binary.LittleEndian.PutUint32(port, uint32(ctx.LocalPort))
	info := protocol.EncodeCloudEnvelope(protocol.CloudEnvelope{
		Command:     protocol.CloudCmdHelloInfo,
		Source:      protocol.CloudDirCloud,
		Destination: protocol.CloudDirDevice,
		Versioned:   true,
		Sequence:    3,
		Payload:     port,
	})
	return [][]byte{ack, resp, info}
}

// discoveryResp points a discovering panel at the advertised cloud
// endpoint. A singleton response carries sequence 0.
func (s *simulatedCloud) discoveryResp(ctx ResponseContext) []byte {
	host := ctx.CloudHost
	if host == "" {
		host = VendorCloudHost
	}
	port := ctx.CloudPort
	if port == 0 {
		port = VendorCloudPort
	}
	payload := make([]byte, 32)
	copy(payload[0:16], host)
	binary.LittleEndian.PutUint32(payload[24:28], uint32(port))
	binary.LittleEndian.PutUint32(payload[28:32], uint32(s.now().UTC().Unix()))
	return protocol.EncodeCloudEnvelope(protocol.CloudEnvelope{
		Command:     protocol.CloudCmdHello,
		Source:      protocol.CloudDirCloudDiscovery,
		Destination: protocol.CloudDirDevice,
		Versioned:   true,
		Sequence:    0,
		Payload:     payload,
	})
}
