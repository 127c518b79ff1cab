package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/arucoloc/internal/broadcast"
)

const (
	clientBuffer = 16
	writeWait    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PositionMessage is one broadcast batch as sent to websocket clients.
type PositionMessage struct {
	Timestamp int64           `json:"timestamp"`
	Positions broadcast.Batch `json:"positions"`
}

// PositionHub fans broadcast batches out to websocket clients. It implements
// broadcast.Sender so it can sit next to the UDP sender. Slow clients drop
// messages rather than stall the frame loop.
type PositionHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
	now     func() time.Time
}

// NewPositionHub creates an empty hub.
func NewPositionHub() *PositionHub {
	return &PositionHub{
		clients: make(map[*websocket.Conn]chan []byte),
		now:     time.Now,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PositionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	out := make(chan []byte, clientBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = out
	h.mu.Unlock()

	go h.writeLoop(conn, out)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(conn)
}

func (h *PositionHub) writeLoop(conn *websocket.Conn, out <-chan []byte) {
	defer conn.Close()
	for msg := range out {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *PositionHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if out, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(out)
	}
}

// Clients returns the number of connected clients.
func (h *PositionHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues the batch for every client.
func (h *PositionHub) Send(ctx context.Context, b broadcast.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return broadcast.ErrClosed
	}
	if len(h.clients) == 0 {
		return nil
	}

	msg, err := json.Marshal(PositionMessage{
		Timestamp: h.now().UnixMilli(),
		Positions: b,
	})
	if err != nil {
		return err
	}

	for _, out := range h.clients {
		select {
		case out <- msg:
		default:
		}
	}
	return nil
}

// Close disconnects every client. Later Sends return broadcast.ErrClosed.
func (h *PositionHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for conn, out := range h.clients {
		delete(h.clients, conn)
		close(out)
	}
	return nil
}
