// Package notifications runs the UDP listener for panel push messages.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/alerts"
	"github.com/panelguard-project/panelguard/internal/events"
)

// DefaultPort is the UDP port panels send push messages to.
const DefaultPort = 12901

const readBufferSize = 4096

// Listener receives push datagrams, decodes them and dispatches the
// resulting events on the bus. Datagrams that fail to decode are logged
// and dropped; the listener never stops over a bad message.
type Listener struct {
	bind      string
	panelHost string
	bus       *events.EventBus
	decoder   *alerts.Decoder
	log       zerolog.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewListener builds a listener bound to bind (host:port). panelHost,
// when non-empty, restricts accepted datagrams to that source address.
func NewListener(bind, panelHost string, bus *events.EventBus) *Listener {
	return &Listener{
		bind:      bind,
		panelHost: panelHost,
		bus:       bus,
		decoder:   alerts.NewDecoder(),
		log:       log.With().Str("component", "notifications").Logger(),
	}
}

// LocalAddr reports the bound address once Listen has opened the
// socket, nil before that.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Listen serves until ctx is canceled. Cancellation closes the socket,
// which unblocks the read loop.
func (l *Listener) Listen(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.bind)
	if err != nil {
		return fmt.Errorf("notifications: resolve %s: %w", l.bind, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("notifications: listen %s: %w", l.bind, err)
	}
	l.mu.Lock()
	l.addr = conn.LocalAddr()
	l.mu.Unlock()
	l.log.Info().Str("bind", conn.LocalAddr().String()).Msg("notification listener started")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var panelIP net.IP
	if l.panelHost != "" {
		if ips, err := net.LookupIP(l.panelHost); err == nil && len(ips) > 0 {
			panelIP = ips[0]
		} else {
			l.log.Warn().Str("host", l.panelHost).
				Msg("cannot resolve panel host, accepting datagrams from any source")
		}
	}

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info().Msg("notification listener stopped")
				return nil
			}
			return fmt.Errorf("notifications: read: %w", err)
		}
		if panelIP != nil && !from.IP.Equal(panelIP) {
			l.log.Warn().Str("from", from.String()).
				Msg("dropping datagram from unexpected source")
			continue
		}
		l.handle(ctx, buf[:n], from)
	}
}

func (l *Listener) handle(ctx context.Context, datagram []byte, from *net.UDPAddr) {
	ev, err := l.decoder.Decode(datagram)
	if err != nil {
		if errors.Is(err, alerts.ErrUnknownMessage) {
			l.log.Warn().Err(err).Str("from", from.String()).Msg("unhandled panel message")
		} else {
			l.log.Warn().Err(err).Str("from", from.String()).Msg("dropping bad datagram")
		}
		return
	}
	l.log.Debug().Str("type", string(ev.Type)).Str("from", from.String()).
		Msg("panel message received")
	l.bus.Emit(ctx, ev)
}
