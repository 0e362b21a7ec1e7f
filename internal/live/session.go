// Package live serves the viewer-facing WebSocket connections that relay
// captured requests in real time. The channel is one-way: server frames carry
// JSON-serialized captured requests, client frames are ignored except for the
// close signal.
package live

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hookscope/hookscope/internal/notify"
	"github.com/hookscope/hookscope/internal/storage"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512

	// Per-viewer delivery buffer. A viewer that falls this far behind is
	// treated as disconnected and pruned by the broker.
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Capture URLs are unguessable; the socket carries no credentials.
		return true
	},
}

// Handler upgrades viewer connections and runs one delivery session each.
type Handler struct {
	store  *storage.Store
	broker *notify.Broker
}

// NewHandler creates a live delivery handler.
func NewHandler(store *storage.Store, broker *notify.Broker) *Handler {
	return &Handler{store: store, broker: broker}
}

// session is one viewer connection. Two goroutines run per session: writePump
// relays broker payloads onto the socket, readPump consumes inbound frames
// solely to detect the close signal. Whichever fails first tears both down.
type session struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	broker *notify.Broker
}

// ServeEndpoint handles a WebSocket request for live updates on one endpoint.
func (h *Handler) ServeEndpoint(w http.ResponseWriter, r *http.Request, endpointID string) {
	if _, err := h.store.GetEndpoint(r.Context(), "", endpointID); err != nil {
		if err == storage.ErrEndpointNotFound {
			http.Error(w, "Endpoint not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to look up endpoint %s: %v", endpointID, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s := &session{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		broker: h.broker,
	}

	h.broker.Subscribe(endpointID, s.id, s.send)
	log.Printf("Viewer %s connected to endpoint %s", s.id, endpointID)

	go s.writePump()
	s.readPump()
}

// readPump consumes inbound frames until the viewer closes the connection or
// the transport errors. Its deferred unsubscribe runs unconditionally: the
// broker closes the send channel, which in turn stops writePump, so neither
// the subscription nor the relay goroutine can leak.
func (s *session) readPump() {
	defer func() {
		s.broker.Unsubscribe(s.id)
		s.conn.Close()
		log.Printf("Viewer %s disconnected", s.id)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Inbound application data is ignored; this subsystem is one-way.
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Viewer %s read error: %v", s.id, err)
			}
			return
		}
	}
}

// writePump relays payloads from the delivery channel onto the socket and
// keeps the connection alive with pings. A write failure closes the
// connection, which unblocks readPump and triggers the unsubscribe there.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Broker removed this subscription.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
