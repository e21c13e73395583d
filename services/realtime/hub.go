package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxClients    = 100
	pingInterval  = 30 * time.Second
	pongTimeout   = 60 * time.Second
	writeTimeout  = 10 * time.Second
	sendBufferLen = 16
)

// Message is the envelope pushed to connected dashboards.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans scan-completion notifications out to connected websocket clients.
// It does not stream market data. Its only job is telling dashboards a new
// snapshot is ready so they can refetch instead of waiting the poll interval.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	shutdown   chan struct{}
	once       sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates the hub; Run must be started on its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		shutdown:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run is the hub loop: registrations, disconnects and broadcasts.
func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			return

		case c := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxClients {
				h.mu.Unlock()
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Server at capacity"))
				c.conn.Close()
				continue
			}
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client connected. Total clients: %d", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("Error marshaling broadcast message: %v", err)
				continue
			}

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Buffer full; drop the slow client.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Shutdown stops the hub loop and closes every connection.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.shutdown) })

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*client]bool)
	h.mu.Unlock()
}

// ScanCompleted implements the scanner's Notifier.
func (h *Hub) ScanCompleted(total, matched int, generatedAt time.Time) {
	msg := Message{
		Type: "scan_complete",
		Data: map[string]interface{}{
			"total":        total,
			"matched":      matched,
			"generated_at": generatedAt.Format(time.RFC3339),
		},
		Time: time.Now().Format(time.RFC3339),
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Println("WebSocket broadcast buffer full, dropping scan notification")
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= maxClients
	h.mu.RUnlock()
	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferLen)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

// writePump writes messages to the WebSocket connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection to keep pong handling alive; inbound
// payloads are ignored.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}
	}
}
