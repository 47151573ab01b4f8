package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/alerts"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/protocol"
)

// DefaultPort is the TCP port panels expect their cloud server on.
const DefaultPort = 5678

// Server accepts panel cloud connections. Without an upstream it
// simulates the vendor cloud; with one it relays bytes both directions
// verbatim and only decodes what passes through.
type Server struct {
	bind      string
	upstream  string
	bus       *events.EventBus
	responder Responder
	decoder   *alerts.Decoder
	log       zerolog.Logger

	mu       sync.Mutex
	addr     net.Addr
	deviceID string
}

// Option configures a Server.
type Option func(*Server)

// WithUpstream switches the server to chained mode, forwarding all
// device bytes to addr and relaying its answers back.
func WithUpstream(addr string) Option {
	return func(s *Server) { s.upstream = addr }
}

// WithResponder replaces the standalone response table.
func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

func NewServer(bind string, bus *events.EventBus, opts ...Option) *Server {
	s := &Server{
		bind:      bind,
		bus:       bus,
		responder: NewSimulatedCloud(),
		decoder:   alerts.NewDecoder(),
		log:       log.With().Str("component", "cloud").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LocalAddr reports the listening address once Serve has bound, nil
// before that.
func (s *Server) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// DeviceID returns the GUID of the last panel that sent a hello, empty
// when no panel has identified itself yet.
func (s *Server) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

// Serve accepts connections until ctx is canceled. Cancellation closes
// the listener, which unblocks Accept.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("cloud: listen %s: %w", s.bind, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	s.log.Info().Str("bind", ln.Addr().String()).
		Bool("chained", s.upstream != "").
		Msg("cloud server started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				s.log.Info().Msg("cloud server stopped")
				return nil
			}
			return fmt.Errorf("cloud: accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn runs one device connection to completion. The read loop
// is a buffered state machine: it waits for a full header, then for the
// full payload the header announces, dispatches, and starts over on the
// remaining bytes. A segment can carry several frames or a fraction of
// one; neither disturbs framing.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	clog := s.log.With().Str("device", remote).Logger()
	clog.Info().Msg("device connected")

	chained := s.upstream != ""
	s.bus.Emit(ctx, events.Event{
		Type:    events.EventCloudConnected,
		Source:  events.SourceCloud,
		Payload: events.CloudConnectionPayload{RemoteAddr: remote, Chained: chained},
	})

	var upstream net.Conn
	defer func() {
		conn.Close()
		if upstream != nil {
			upstream.Close()
		}
		s.mu.Lock()
		s.deviceID = ""
		s.mu.Unlock()
		clog.Info().Msg("device disconnected")
		s.bus.Emit(ctx, events.Event{
			Type:    events.EventCloudDisconnected,
			Source:  events.SourceCloud,
			Payload: events.CloudConnectionPayload{RemoteAddr: remote, Chained: chained},
		})
	}()

	if chained {
		var d net.Dialer
		up, err := d.DialContext(ctx, "tcp", s.upstream)
		if err != nil {
			// A relay without its upstream must not impersonate the
			// cloud; drop the device and let it reconnect.
			clog.Warn().Err(err).Str("upstream", s.upstream).
				Msg("upstream unreachable, dropping device connection")
			return
		}
		upstream = up
		// Upstream bytes go back to the device untouched.
		go func() {
			if _, err := io.Copy(conn, up); err != nil && ctx.Err() == nil {
				clog.Debug().Err(err).Msg("upstream relay ended")
			}
			conn.Close()
		}()
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	localPort := 0
	if tcp, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		localPort = tcp.Port
	}
	rctx := ResponseContext{LocalPort: localPort}

	var buf []byte
	segment := make([]byte, 4096)
	for {
		n, err := conn.Read(segment)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				clog.Debug().Err(err).Msg("device read ended")
			}
			return
		}
		if upstream != nil {
			if _, err := upstream.Write(segment[:n]); err != nil {
				clog.Warn().Err(err).Msg("upstream write failed, dropping device connection")
				return
			}
		}
		buf = append(buf, segment[:n]...)
		for len(buf) > 0 {
			env, consumed, err := protocol.DecodeCloudEnvelope(buf)
			if errors.Is(err, protocol.ErrShortRead) {
				break
			}
			if err != nil {
				clog.Error().Err(err).Msg("unrecoverable framing error, dropping connection")
				return
			}
			buf = buf[consumed:]
			s.dispatch(ctx, clog, conn, env, rctx, chained)
		}
	}
}

// dispatch decodes one envelope, emits the events it carries and, in
// standalone mode, writes the simulated responses.
func (s *Server) dispatch(ctx context.Context, clog zerolog.Logger, conn net.Conn,
	env protocol.CloudEnvelope, rctx ResponseContext, chained bool) {

	msg, err := DecodeMessage(env)
	if err != nil {
		clog.Warn().Err(err).Uint8("command", env.Command).
			Msg("skipping undecodable cloud message")
		return
	}
	if msg.Kind == KindUnknown {
		clog.Debug().Uint8("command", env.Command).Uint8("source", env.Source).
			Msg("skipping unrecognized cloud message")
		return
	}
	clog.Debug().Stringer("kind", msg.Kind).Msg("cloud message received")

	for _, ev := range s.messageEvents(msg, clog) {
		s.bus.Emit(ctx, ev)
	}

	// In chained mode the real cloud answers; decode stays observational.
	if chained {
		return
	}
	for _, frame := range s.responder.Respond(msg, rctx) {
		if _, err := conn.Write(frame); err != nil {
			clog.Warn().Err(err).Msg("response write failed")
			return
		}
	}
}

// messageEvents maps a decoded message onto bus events. Status reports
// reuse the alert classifier so cloud sourced events match the UDP
// ones, with the source relabeled.
func (s *Server) messageEvents(msg Message, clog zerolog.Logger) []events.Event {
	switch msg.Kind {
	case KindHello, KindDiscoveryHello:
		s.mu.Lock()
		s.deviceID = msg.GUID
		s.mu.Unlock()
		return []events.Event{{
			Type:   events.EventCloudHello,
			Source: events.SourceCloud,
			Payload: events.CloudHelloPayload{
				DeviceID:        msg.GUID,
				FirmwareVersion: msg.FirmwareVersion,
				Discovery:       msg.Kind == KindDiscoveryHello,
			},
		}}
	case KindNotification:
		ev, err := s.decoder.Decode(msg.Notification)
		if err != nil {
			clog.Warn().Err(err).Msg("dropping bad embedded notification")
			return nil
		}
		ev.Source = events.SourceCloud
		return []events.Event{ev}
	case KindStatusChange, KindSensorStatus, KindAlarmStatus:
		ev, err := s.decoder.ClassifyAlert(msg.asAlert())
		if err != nil {
			clog.Warn().Err(err).Msg("dropping unclassifiable status change")
			return nil
		}
		ev.Source = events.SourceCloud
		return []events.Event{ev}
	}
	return nil
}

// asAlert rewrites a status report as the alert record the classifier
// understands.
func (m Message) asAlert() alerts.Alert {
	switch m.Kind {
	case KindSensorStatus:
		return alerts.Alert{
			Type:     int(events.AlertSensorActivity),
			EventID:  m.SensorID,
			Source:   int(events.AlertSourceSensor),
			State:    m.SensorState,
			ZoneName: m.SensorName,
			UnixTime: m.UnixTime,
		}
	case KindAlarmStatus:
		return alerts.Alert{
			Type:     int(events.AlertAlarm),
			EventID:  m.SensorID,
			Source:   int(events.AlertSourceDevice),
			State:    m.SensorState,
			ZoneName: m.SensorName,
			UnixTime: m.UnixTime,
		}
	}
	return alerts.Alert{
		Type:     int(events.AlertStateChange),
		EventID:  m.StateChange,
		Source:   int(events.AlertSourceDevice),
		UnixTime: m.UnixTime,
	}
}
