package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"draftproxy/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                 freePort(t),
		ShutdownTimeout:      5 * time.Second,
		MaxReconnectAttempts: 5,
		HeartbeatInterval:    time.Hour,
		ConnectionTimeout:    2 * time.Second,
		LogLevel:             "error",
		Environment:          config.EnvTest,
		EventLogPath:         filepath.Join(t.TempDir(), "events.db"),
	}
}

// fakeDraft is the upstream stand-in for full-stack tests.
type fakeDraft struct {
	srv      *httptest.Server
	received chan []byte
	conns    chan *websocket.Conn
}

func newFakeDraft(t *testing.T) *fakeDraft {
	t.Helper()
	f := &fakeDraft{
		received: make(chan []byte, 32),
		conns:    make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f.received <- data
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDraft) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func startApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	application, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return application
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not JSON: %v", err)
	}
	return frame
}

func TestApplication_InvalidConfigRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = 0
	if _, err := New(cfg); err == nil {
		t.Error("Expected startup failure for invalid port")
	}
}

func TestApplication_EndToEnd(t *testing.T) {
	draft := newFakeDraft(t)
	cfg := testConfig(t)
	startApp(t, cfg)

	base := fmt.Sprintf("127.0.0.1:%d", cfg.Port)

	// Health answers before any client connects.
	resp, err := http.Get("http://" + base + "/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from /health, got %d", resp.StatusCode)
	}

	// S1: client connects, gets room_joined then yahoo_connected, and the
	// upstream sees the join frame.
	wsAddr := "ws://" + base + "/yahoo/websocket/connection" +
		"?leagueId=12345&draftPosition=1&websocketUrl=" + draft.url() + "&platformUserId=user-a"
	client, _, err := websocket.DefaultDialer.Dial(wsAddr, nil)
	if err != nil {
		t.Fatalf("Client dial failed: %v", err)
	}
	defer client.Close()

	joined := readFrame(t, client)
	if joined["type"] != "room_joined" || joined["roomId"] != "12345" {
		t.Fatalf("Unexpected first frame: %v", joined)
	}

	connected := readFrame(t, client)
	if connected["type"] != "yahoo_connected" {
		t.Fatalf("Expected yahoo_connected, got %v", connected)
	}

	select {
	case join := <-draft.received:
		expected := "8|12345|1|YahooFantasyProxy%2F1.0%20(user-a)|"
		if string(join) != expected {
			t.Errorf("Expected join frame %q, got %q", expected, string(join))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Upstream never received the join frame")
	}

	// S2: upstream frames relay to the client verbatim.
	upstreamConn := <-draft.conns
	if err := upstreamConn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("Upstream write failed: %v", err)
	}
	relayed := readFrame(t, client)
	if relayed["type"] != "yahoo_message" || relayed["data"] != "hello" {
		t.Fatalf("Expected relayed hello, got %v", relayed)
	}

	// Downstream frames reach the upstream.
	if err := client.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"yahoo_message","data":"pick 42"}`)); err != nil {
		t.Fatalf("Client write failed: %v", err)
	}
	select {
	case data := <-draft.received:
		if string(data) != "pick 42" {
			t.Errorf("Expected forwarded pick, got %q", string(data))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Upstream never received the forwarded frame")
	}
}

func TestApplication_ShutdownClosesClients(t *testing.T) {
	draft := newFakeDraft(t)
	cfg := testConfig(t)
	application := startApp(t, cfg)

	wsAddr := fmt.Sprintf("ws://127.0.0.1:%d/yahoo/websocket/connection"+
		"?leagueId=777&draftPosition=1&websocketUrl=%s", cfg.Port, draft.url())
	client, _, err := websocket.DefaultDialer.Dial(wsAddr, nil)
	if err != nil {
		t.Fatalf("Client dial failed: %v", err)
	}
	defer client.Close()
	readFrame(t, client) // room_joined

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := client.ReadMessage()
		if err == nil {
			continue // drain frames queued before the close
		}
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("Expected close error, got %v", err)
		}
		if ce.Code != 1001 || ce.Text != "Server shutdown" {
			t.Errorf("Expected close 1001/Server shutdown, got %d/%q", ce.Code, ce.Text)
		}
		return
	}
}
