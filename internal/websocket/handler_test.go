package websocket

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"draftproxy/internal/registry"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newFakeDraftServer is a minimal upstream for acceptor tests.
func newFakeDraftServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAcceptor(t *testing.T) (*Handler, *registry.Registry, *httptest.Server) {
	t.Helper()
	reg := registry.New(registry.Config{
		HeartbeatInterval:    time.Hour,
		DialTimeout:          2 * time.Second,
		MaxReconnectAttempts: 5,
	}, nil, quietLogger())
	handler := NewHandler(reg, quietLogger())

	srv := httptest.NewServer(http.HandlerFunc(handler.HandleConnection))
	t.Cleanup(srv.Close)
	return handler, reg, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "?" + query
}

func TestHandler_MissingParametersRejected(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"no parameters", ""},
		{"missing websocketUrl", "leagueId=12345&draftPosition=1"},
		{"missing leagueId", "draftPosition=1&websocketUrl=ws%3A%2F%2Fu"},
		{"draft position zero", "leagueId=12345&draftPosition=0&websocketUrl=ws%3A%2F%2Fu"},
		{"draft position not a number", "leagueId=12345&draftPosition=first&websocketUrl=ws%3A%2F%2Fu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, srv := newAcceptor(t)

			conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.query), nil)
			if err != nil {
				t.Fatalf("Dial failed before policy close: %v", err)
			}
			defer conn.Close()

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err = conn.ReadMessage()
			ce, ok := err.(*websocket.CloseError)
			if !ok {
				t.Fatalf("Expected a close error, got %v", err)
			}
			if ce.Code != websocket.ClosePolicyViolation {
				t.Errorf("Expected close code 1008, got %d", ce.Code)
			}
			if !strings.HasPrefix(ce.Text, "Missing required parameters") {
				t.Errorf("Unexpected close reason: %q", ce.Text)
			}
		})
	}
}

func TestHandler_ValidConnectionJoinsRoom(t *testing.T) {
	upstream := newFakeDraftServer(t)
	_, reg, srv := newAcceptor(t)

	upstreamURL := "ws" + strings.TrimPrefix(upstream.URL, "http")
	query := "leagueId=12345&draftPosition=1&websocketUrl=" + upstreamURL + "&platformUserId=user-a"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read room_joined: %v", err)
	}

	var joined map[string]interface{}
	if err := json.Unmarshal(data, &joined); err != nil {
		t.Fatalf("room_joined is not JSON: %v", err)
	}
	if joined["type"] != "room_joined" {
		t.Errorf("Expected room_joined, got %v", joined["type"])
	}
	if joined["roomId"] != "12345" {
		t.Errorf("Expected roomId 12345, got %v", joined["roomId"])
	}
	if joined["yahooConnected"] != false {
		t.Errorf("Expected yahooConnected false, got %v", joined["yahooConnected"])
	}
	if joined["clientsCount"] != float64(1) {
		t.Errorf("Expected clientsCount 1, got %v", joined["clientsCount"])
	}

	if reg.Count() != 1 {
		t.Errorf("Expected one room in the registry, got %d", reg.Count())
	}
	if _, ok := reg.Get("12345"); !ok {
		t.Error("Expected room 12345 in the registry")
	}
}

func TestHandler_PlatformUserDefaultsToUnknown(t *testing.T) {
	upstream := newFakeDraftServer(t)
	_, reg, srv := newAcceptor(t)

	upstreamURL := "ws" + strings.TrimPrefix(upstream.URL, "http")
	query := "leagueId=777&draftPosition=2&websocketUrl=" + upstreamURL

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("Failed to read room_joined: %v", err)
	}

	r, ok := reg.Get("777")
	if !ok {
		t.Fatal("Expected room 777 in the registry")
	}
	if r.Status().PlatformUserID != "unknown" {
		t.Errorf("Expected platform user to default to unknown, got %q", r.Status().PlatformUserID)
	}
}
