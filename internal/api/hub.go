package api

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// hub fans a single broadcast payload out to every connected
// websocket client, dropping any client whose write fails. Writes are
// synchronous and have no deadline, so a slow client delays delivery
// to the clients after it.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]string)}
}

func (h *hub) register(conn *websocket.Conn) {
	clientID := uuid.NewString()

	h.mu.Lock()
	h.clients[conn] = clientID
	h.mu.Unlock()

	log.Debug().Str("client", clientID).Msg("websocket client connected")
	go h.drainUntilClosed(conn, clientID)
}

// drainUntilClosed discards client-sent frames (this stream is
// server-to-client only) until the connection closes, then removes it
// from the hub.
func (h *hub) drainUntilClosed(conn *websocket.Conn, clientID string) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		log.Debug().Str("client", clientID).Msg("websocket client disconnected")
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, clientID := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Warn().Str("client", clientID).Err(err).Msg("api: dropping websocket client after write failure")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
