package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gatewatch/internal/config"
	"gatewatch/internal/gate"
	"gatewatch/internal/logger"
	"gatewatch/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	dir, err := os.MkdirTemp("", "gatewatch_ingest_test")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := &config.Config{LogDirectory: filepath.Join(dir, "logs")}
	log := logger.NewLogger(cfg)

	s, err := store.New(filepath.Join(dir, "test.db"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	counter := gate.NewCounter("cam-1", gate.Config{
		Mode:            gate.ModeHorizontalBand,
		GateY:           100,
		GateHeight:      20,
		CooldownSec:     1,
		MinFramesInGate: 1,
		MinTravelPx:     10,
	})

	return NewHandler(s, counter, log), s
}

func dialWebsocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ingest/tracks?camera_id=cam-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandler_CrossingProducesStoredEvent(t *testing.T) {
	h, s := newTestHandler(t)
	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer server.Close()

	conn := dialWebsocket(t, server)

	now := time.Now()
	boxes := []trackedBoxMessage{
		{CameraID: "cam-1", TrackID: 1, X: 95, Y: 70, W: 10, H: 10, Timestamp: now},
		{CameraID: "cam-1", TrackID: 1, X: 95, Y: 90, W: 10, H: 10, Timestamp: now.Add(100 * time.Millisecond)},
		{CameraID: "cam-1", TrackID: 1, X: 95, Y: 115, W: 10, H: 10, Timestamp: now.Add(200 * time.Millisecond)},
	}
	for _, b := range boxes {
		payload, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal box: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		in, out, err := s.EventsInWindow(now.Add(-time.Minute), now.Add(time.Minute), "cam-1")
		if err != nil {
			t.Fatalf("events in window: %v", err)
		}
		if in == 1 && out == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected one IN event to be persisted, got in=%d out=%d", in, out)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_MalformedMessageIsIgnored(t *testing.T) {
	h, s := newTestHandler(t)
	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer server.Close()

	conn := dialWebsocket(t, server)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	time.Sleep(50 * time.Millisecond)
	in, out, err := s.EventsInWindow(time.Now().Add(-time.Minute), time.Now().Add(time.Minute), "cam-1")
	if err != nil {
		t.Fatalf("events in window: %v", err)
	}
	if in != 0 || out != 0 {
		t.Errorf("expected no events from a malformed message, got in=%d out=%d", in, out)
	}
}
