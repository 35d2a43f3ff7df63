// Package ingest accepts tracked-box updates from an external detector/
// tracker over a websocket and turns them into gate-crossing events.
package ingest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gatewatch/internal/gate"
	"gatewatch/internal/logger"
	"gatewatch/internal/store"
)

// trackedBoxMessage is the wire shape of one inbound frame update: the
// external tracker's bounding box for one track on one camera, at one
// instant. This replaces the teacher's raw-JPEG frame message — the
// detector/tracker itself lives outside this service per the ingestion
// contract's external-collaborator boundary.
type trackedBoxMessage struct {
	CameraID  string    `json:"camera_id"`
	TrackID   int64     `json:"track_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	W         float64   `json:"w"`
	H         float64   `json:"h"`
	Timestamp time.Time `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// queueDepth bounds the in-memory backlog of parsed boxes waiting to be run
// through the gate counter and written to the Store. A full queue falls
// back to a direct, blocking write so no event is ever dropped silently —
// it just stops being buffered.
const queueDepth = 256

// Handler wires one camera's websocket connection to a gate.Counter and the
// Store, grounded on handlers/websockets.go's CameraWebsocketHandler (same
// upgrade/read-deadline/pong-handler shape, JSON tracked boxes instead of
// JPEG frames).
type Handler struct {
	store   *store.Store
	counter *gate.Counter
	log     *logger.Logger
	queue   chan trackedBoxMessage
	done    chan struct{}
}

// NewHandler builds a Handler processing boxes for one camera's gate.Counter.
func NewHandler(s *store.Store, counter *gate.Counter, log *logger.Logger) *Handler {
	h := &Handler{
		store:   s,
		counter: counter,
		log:     log,
		queue:   make(chan trackedBoxMessage, queueDepth),
		done:    make(chan struct{}),
	}
	go h.drain()
	return h
}

// ServeHTTP upgrades the connection and reads tracked-box JSON messages
// until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ingest websocket upgrade error: %v", err)
		return
	}
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	defer conn.Close()

	h.log.Info("ingestion connected: camera=%s", cameraID)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.log.Info("ingestion disconnected: camera=%s err=%v", cameraID, err)
			return
		}

		var msg trackedBoxMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.log.Warning("ingestion: malformed tracked box from camera=%s: %v", cameraID, err)
			continue
		}
		if msg.CameraID == "" {
			msg.CameraID = cameraID
		}

		h.enqueue(msg)
	}
}

// enqueue buffers msg for the drain goroutine. When the queue is full it
// falls back to processing msg inline rather than blocking the read loop
// indefinitely or dropping the update, per spec §5's frame-worker rule.
func (h *Handler) enqueue(msg trackedBoxMessage) {
	select {
	case h.queue <- msg:
	default:
		h.process(msg)
	}
}

func (h *Handler) drain() {
	for {
		select {
		case msg := <-h.queue:
			h.process(msg)
		case <-h.done:
			return
		}
	}
}

// process feeds one tracked box through the gate counter and, on a
// resolved crossing, writes the event through the Store before returning —
// the event is durable before the next box is processed, per spec §5.
func (h *Handler) process(msg trackedBoxMessage) {
	box := gate.TrackedBox{
		CameraID:  msg.CameraID,
		TrackID:   msg.TrackID,
		X:         msg.X,
		Y:         msg.Y,
		W:         msg.W,
		H:         msg.H,
		Timestamp: msg.Timestamp,
	}

	event, crossed := h.counter.Update(box)
	if !crossed {
		return
	}

	direction := store.DirectionIn
	if event.Direction == gate.DirectionOut {
		direction = store.DirectionOut
	}

	if _, err := h.store.AppendEvent(store.Event{
		EventTime: event.Timestamp,
		Direction: direction,
		CameraID:  event.CameraID,
		TrackID:   event.TrackID,
	}); err != nil {
		h.log.Error("ingestion: failed to persist crossing event camera=%s track=%d: %v",
			event.CameraID, event.TrackID, err)
	}
}

// Close stops the drain goroutine. Outstanding queued boxes are processed
// before returning, matching the shutdown drain rule in spec §5.
func (h *Handler) Close() {
	for {
		select {
		case msg := <-h.queue:
			h.process(msg)
		default:
			close(h.done)
			return
		}
	}
}
