package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmostrack/atmostrack/internal/live"
	"github.com/atmostrack/atmostrack/internal/metrics"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 50
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is the envelope sent to viewers.
type WSMessage struct {
	Type string    `json:"type"`
	Data TupleView `json:"data"`
}

// Hub fans live tuples out to WebSocket viewers. Each connection owns a
// subscription with its own buffer; a slow viewer loses updates instead
// of blocking ingestion or its peers.
type Hub struct {
	live *live.Store
}

func NewHub(liveStore *live.Store) *Hub {
	return &Hub{live: liveStore}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}
	defer conn.Close()

	metrics.WSClients.Inc()
	defer metrics.WSClients.Dec()

	updates, cancel := h.live.Subscribe(wsSendBuffer)
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Reader exists only to service pongs and detect the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Snapshot so a new viewer doesn't stare at a blank dashboard until
	// the next reading arrives.
	now := time.Now()
	for _, id := range h.live.Devices() {
		if tuple, ok := h.live.Latest(id); ok {
			if err := h.write(conn, tuple, now); err != nil {
				return
			}
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case tuple := <-updates:
			if err := h.write(conn, tuple, time.Now()); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, tuple live.Tuple, now time.Time) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(WSMessage{Type: "update", Data: newTupleView(tuple, now)})
}
