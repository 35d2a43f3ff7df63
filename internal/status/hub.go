// Package status broadcasts phase/occupancy snapshots to connected viewers
// over a websocket, grounded on services/websocket/hub.go's register/
// unregister/broadcast channel loop.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gatewatch/internal/logger"
	"gatewatch/internal/phase"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotMessage is the JSON shape broadcast to viewers for one tick.
type snapshotMessage struct {
	Date         string `json:"date"`
	Phase        string `json:"phase"`
	TotalMorning int    `json:"total_morning"`
	Present      int    `json:"present"`
	Missing      int    `json:"missing"`
}

// Hub fans out occupancy snapshots to every connected viewer. Its register/
// unregister/broadcast channel loop is a direct generalization of the
// teacher's HubService, with the viewer payload changed from a JPEG frame
// to a JSON occupancy snapshot.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan snapshotMessage
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewHub builds a Hub. Callers must start Run in its own goroutine.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan snapshotMessage),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log,
	}
}

// Run drains the register/unregister/broadcast channels until stop fires.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = true
			h.mutex.Unlock()
			h.log.Info("status viewer connected. total: %d", len(h.clients))

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()
			h.log.Info("status viewer disconnected. total: %d", len(h.clients))

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.log.Error("status: failed to marshal snapshot: %v", err)
				continue
			}
			h.mutex.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					h.log.Warning("status: failed to send to viewer: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
			h.mutex.RUnlock()

		case <-stop:
			return
		}
	}
}

// Publish converts a phase.Snapshot into the wire message and hands it to
// the broadcast loop. It is the hook wired to phase.Manager's OnSnapshot.
func (h *Hub) Publish(snap phase.Snapshot) {
	h.broadcast <- snapshotMessage{
		Date:         snap.Date,
		Phase:        string(snap.Phase),
		TotalMorning: snap.TotalMorning,
		Present:      snap.Present,
		Missing:      snap.Missing,
	}
}

// ServeHTTP upgrades a viewer connection and registers it with the hub. The
// connection is read-only from the viewer's side: incoming messages are
// discarded, matching ViewWebsocketHandler's "keep reading until the pong
// deadline lapses" shape.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("status websocket upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	h.register <- conn
	defer func() { h.unregister <- conn }()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount reports the number of connected viewers, for diagnostics.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
