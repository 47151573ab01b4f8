package local

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/panelguard-project/panelguard/internal/protocol"
)

// DefaultPort is the UDP port panels listen on for local commands.
const DefaultPort = 12368

const readBufferSize = 16 * 1024

// Transport issues local protocol commands over UDP. Each command opens
// its own socket, correlates replies by command code and discards
// datagrams from other hosts or with foreign codes until the per-attempt
// timeout expires, then retries.
//
// The panel cannot distinguish two in-flight requests with the same
// command code, so callers that issue the same code concurrently must
// serialize those calls themselves. The transport serializes all
// commands with an internal mutex, which covers the common case of one
// client per panel.
type Transport struct {
	addr    string
	timeout time.Duration
	retries int

	mu  sync.Mutex
	log zerolog.Logger
}

// NewTransport returns a transport for the panel at host:port. timeout
// is the per-attempt response budget; retries is the number of
// additional attempts after the first.
func NewTransport(host string, port int, timeout time.Duration, retries int) *Transport {
	if port == 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Transport{
		addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		timeout: timeout,
		retries: retries,
		log: log.With().
			Str("component", "local").
			Str("panel", host).
			Logger(),
	}
}

// SendCommand sends one command and waits for its response. args is nil
// for parameterless commands. The returned fields are the response
// payload elements; a bare acknowledgement yields nil fields and no
// error.
func (t *Transport) SendCommand(ctx context.Context, code int, args interface{}) ([]json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	request, err := protocol.EncodeLocalRequest(code, args)
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	for attempt := 0; attempt <= t.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			t.log.Debug().Int("code", code).Int("attempt", attempt+1).
				Msg("retrying command")
		}
		fields, err := t.exchange(ctx, raddr, code, request)
		if err == nil {
			return fields, nil
		}
		if !isTimeout(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: code %d after %d attempts", ErrCommandTimeout, code, t.retries+1)
}

// exchange performs one request/response attempt. Datagrams from the
// wrong peer or with a foreign command code are discarded and the read
// loop continues until the attempt deadline.
func (t *Transport) exchange(ctx context.Context, raddr *net.UDPAddr, code int, request []byte) ([]json.RawMessage, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if _, err := conn.WriteToUDP(request, raddr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		if !from.IP.Equal(raddr.IP) || from.Port != raddr.Port {
			t.log.Warn().Str("from", from.String()).
				Msg("discarding datagram from unexpected peer")
			continue
		}
		resp, err := protocol.DecodeLocalResponse(buf[:n])
		if err != nil {
			t.log.Warn().Err(err).Int("code", code).
				Msg("discarding undecodable response")
			continue
		}
		if resp.Empty {
			return nil, nil
		}
		if resp.Code != code {
			t.log.Warn().Int("want", code).Int("got", resp.Code).
				Msg("discarding response with mismatched code")
			continue
		}
		return resp.Fields, nil
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
