package status

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
	"gatewatch/internal/logger"
	"gatewatch/internal/phase"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	dir, err := os.MkdirTemp("", "gatewatch_status_test")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := &config.Config{LogDirectory: filepath.Join(dir, "logs")}
	log := logger.NewLogger(cfg)
	return NewHub(log)
}

func TestHub_PublishesSnapshotToConnectedViewer(t *testing.T) {
	h := newTestHub(t)
	stop := make(chan struct{})
	defer close(stop)
	go h.Run(stop)

	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/status"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub never registered the viewer")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Publish(phase.Snapshot{
		Date:         "2026-01-15",
		Phase:        phase.RealtimeMorning,
		TotalMorning: 10,
		Present:      7,
		Missing:      3,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg snapshotMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Date != "2026-01-15" || msg.Phase != string(phase.RealtimeMorning) || msg.Missing != 3 {
		t.Errorf("unexpected snapshot message: %+v", msg)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	h := newTestHub(t)
	stop := make(chan struct{})
	defer close(stop)
	go h.Run(stop)

	server := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/status"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub never registered the viewer")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub never unregistered the viewer")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
