package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/panelguard-project/panelguard/internal/config"
	"github.com/panelguard-project/panelguard/internal/db"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/local"
)

// mockPanel answers local protocol commands on a loopback UDP socket.
type mockPanel struct {
	conn    *net.UDPConn
	handler func(body string) [][]byte
}

func newMockPanel(t *testing.T, handler func(body string) [][]byte) *mockPanel {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("mock panel listen: %v", err)
	}
	p := &mockPanel{conn: conn, handler: handler}
	go p.serve()
	t.Cleanup(func() { conn.Close() })
	return p
}

func (p *mockPanel) serve() {
	buf := make([]byte, 4096)
	for {
		n, from, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		body := strings.TrimSuffix(strings.TrimPrefix(string(buf[:n-1]), "ISTART"), "IEND")
		for _, reply := range p.handler(body) {
			p.conn.WriteToUDP(reply, from)
		}
	}
}

func (p *mockPanel) port() int {
	return p.conn.LocalAddr().(*net.UDPAddr).Port
}

func datagram(body string) []byte {
	return []byte("ISTART" + body + "IEND\x00")
}

// newTestServer builds a router backed by a mock panel and a fresh journal.
func newTestServer(t *testing.T, handler func(body string) [][]byte) (*Server, *gin.Engine, *db.Journal) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	panel := newMockPanel(t, handler)

	cfg := config.DefaultConfig()
	cfg.Panel.Host = "127.0.0.1"
	cfg.Panel.Port = panel.port()

	database, err := db.NewDatabase(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	journal, err := db.NewJournal(database)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}

	transport := local.NewTransport(cfg.Panel.Host, cfg.Panel.Port, time.Second, 0)
	client := local.NewClient(transport)

	s := NewServer(cfg, events.NewEventBus(), client, journal)
	return s, s.buildRouter(), journal
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	_, router, _ := newTestServer(t, func(body string) [][]byte { return nil })

	w := doRequest(router, http.MethodGet, "/api/ping")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestGetStatus(t *testing.T) {
	_, router, _ := newTestServer(t, func(body string) [][]byte {
		if body != `[100,100,""]` {
			t.Errorf("unexpected request body %q", body)
		}
		return [][]byte{datagram(`[100,[1,"","TSV018-C3SIA","1.2","1.1"]]`)}
	})

	w := doRequest(router, http.MethodGet, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		ArmState string `json:"arm_state"`
		Product  string `json:"product"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ArmState != "arm_away" {
		t.Errorf("arm_state = %q, want arm_away", resp.ArmState)
	}
	if resp.Product != "TSV018-C3SIA" {
		t.Errorf("product = %q", resp.Product)
	}
}

func TestDisarm(t *testing.T) {
	_, router, _ := newTestServer(t, func(body string) [][]byte {
		if body != `[101,101,[101,[3]]]` {
			t.Errorf("unexpected request body %q", body)
		}
		return [][]byte{[]byte("ISTARTIEND\x00")}
	})

	w := doRequest(router, http.MethodPost, "/api/disarm")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestGetStatusPanelTimeout(t *testing.T) {
	_, router, _ := newTestServer(t, func(body string) [][]byte {
		return nil // never answer
	})

	w := doRequest(router, http.MethodGet, "/api/status")
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", w.Code)
	}
}

func TestGetEvents(t *testing.T) {
	_, router, journal := newTestServer(t, func(body string) [][]byte { return nil })

	journal.Record(events.Event{
		Type:   events.EventAlarm,
		Source: events.SourceNotifications,
		Payload: events.AlarmPayload{
			SensorID:   2,
			SensorName: "Kitchen",
		},
	})

	w := doRequest(router, http.MethodGet, "/api/events")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Count  int `json:"count"`
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || len(resp.Events) != 1 {
		t.Fatalf("count = %d, events = %d, want 1", resp.Count, len(resp.Events))
	}
	if resp.Events[0].Type != string(events.EventAlarm) {
		t.Errorf("event type = %q, want alarm", resp.Events[0].Type)
	}
}

func TestGetEventSummary(t *testing.T) {
	_, router, journal := newTestServer(t, func(body string) [][]byte { return nil })

	journal.Record(events.Event{Type: events.EventAlarm, Source: events.SourceNotifications})
	journal.Record(events.Event{Type: events.EventArmDisarm, Source: events.SourceNotifications})
	journal.Record(events.Event{Type: events.EventArmDisarm, Source: events.SourceNotifications})

	w := doRequest(router, http.MethodGet, "/api/events/summary")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		Counts map[string]int64 `json:"counts"`
		Total  int64            `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
	if resp.Counts[string(events.EventArmDisarm)] != 2 {
		t.Errorf("arm_disarm count = %d, want 2", resp.Counts[string(events.EventArmDisarm)])
	}
}

func TestDeviceNotFound(t *testing.T) {
	_, router, _ := newTestServer(t, func(body string) [][]byte {
		// Empty device list.
		return [][]byte{datagram(`[138,[[0,1,0]]]`)}
	})

	w := doRequest(router, http.MethodPost, "/api/devices/9/on")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body %s)", w.Code, w.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	_, router, _ := newTestServer(t, func(body string) [][]byte { return nil })

	w := doRequest(router, http.MethodGet, "/api/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)

	router := gin.New()
	router.Use(rl.Middleware())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	limited := false
	for i := 0; i < 10; i++ {
		w := doRequest(router, http.MethodGet, "/")
		if w.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limiter never engaged under burst load")
	}
}
