package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/playmatatu/plinko/internal/drops"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are checked by middleware.WebSocketCORSCheck
	},
}

// Recorder counts and announces a settled live drop.
type Recorder interface {
	Record(ctx context.Context, p drops.Published)
}

// Client represents a connected WebSocket client
type Client struct {
	conn     *websocket.Conn
	id       string
	operator string
	board    string
	send     chan []byte
	cmds     chan WSMessage
	joined   chan struct{} // closed once the hub has registered the client
	done     chan struct{}
}

// Hub maintains the set of active clients, grouped by board.
type Hub struct {
	clients    map[string]*Client            // clientID -> Client
	boardRooms map[string]map[string]*Client // board -> clientID -> Client
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{} // closed when Run returns
	mu         sync.RWMutex

	rdb       *redis.Client
	recorder  Recorder
	frameRate int
}

// NewHub creates a new Hub. rdb may be nil, in which case settled drops are
// only relayed to spectators connected to this instance.
func NewHub(rdb *redis.Client, recorder Recorder, frameRate int) *Hub {
	if frameRate <= 0 {
		frameRate = 60
	}
	return &Hub{
		clients:    make(map[string]*Client),
		boardRooms: make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		rdb:        rdb,
		recorder:   recorder,
		frameRate:  frameRate,
	}
}

// Run registers and unregisters clients until ctx is cancelled. It must be
// called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			if _, exists := h.boardRooms[client.board]; !exists {
				h.boardRooms[client.board] = make(map[string]*Client)
			}
			h.boardRooms[client.board][client.id] = client
			size := len(h.boardRooms[client.board])
			h.mu.Unlock()
			close(client.joined)
			log.Printf("[WS] client %s (%s) joined board %s (room_size=%d)", client.id, client.operator, client.board, size)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.id]; ok && cur == client {
				delete(h.clients, client.id)
				if room, exists := h.boardRooms[client.board]; exists {
					delete(room, client.id)
					if len(room) == 0 {
						delete(h.boardRooms, client.board)
					}
				}
				close(client.send)
				log.Printf("[WS] client %s left board %s", client.id, client.board)
			}
			h.mu.Unlock()
		}
	}
}

// join hands c to Run. It reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// leave hands c to Run for removal. After the hub has stopped there is no
// one left to remove it, so it returns at once.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// ClientCount returns the number of connected clients across all boards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients watching board.
func (h *Hub) RoomSize(board string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boardRooms[board])
}

// BroadcastToBoard sends a message to every client watching board.
func (h *Hub) BroadcastToBoard(board string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.boardRooms[board] {
		select {
		case client.send <- data:
		default:
			log.Printf("[WS] send buffer full for client %s on board %s, dropping message", client.id, board)
		}
	}
}

// SendToClient sends a message to one registered client. Messages for
// clients that already left are dropped.
func (h *Hub) SendToClient(client *Client, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if cur, ok := h.clients[client.id]; !ok || cur != client {
		return
	}
	select {
	case client.send <- data:
	default:
		log.Printf("[WS] SendToClient dropped message for client %s (buffer full)", client.id)
	}
}

// announce counts a settled live drop and relays it to the board's
// spectators. With redis the relay goes through the drops channel so every
// instance sees it.
func (h *Hub) announce(p drops.Published) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if h.recorder != nil {
		h.recorder.Record(ctx, p)
	}
	if h.rdb == nil {
		h.BroadcastToBoard(p.Board, feedMessage(p))
	}
}

func feedMessage(p drops.Published) map[string]interface{} {
	return map[string]interface{}{
		"type": "drop_feed",
		"drop": p,
	}
}

// Message types
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for client %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] ping error for client %s: %v", c.id, err)
				return
			}
		}
	}
}
