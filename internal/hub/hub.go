// pattern: Imperative Shell

package hub

import (
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"

	"treetop/internal/logging"
)

// Message is the wire envelope for hub traffic in both directions.
// Payload shape depends on Type; see the api package for outbound shapes.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Outbound message types.
const (
	TypeWorkspacesUpdated = "workspaces_updated"
	TypeAgentsUpdated     = "agents_updated"
	TypeLogEntry          = "log_entry"
	TypePing              = "ping"
)

// TypeSubscribe is the only recognized inbound message type. Its payload
// is a list of topic strings, recorded per connection. Topics are
// advisory: broadcasts are currently delivered to every client.
const TypeSubscribe = "subscribe"

// Hub owns the set of connected clients. All membership mutation and
// broadcast iteration happens on the single Run loop; connection I/O
// lives on per-client pumps that only talk to the loop through the three
// event channels.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	done       chan struct{}
	count      atomic.Int32
	logger     *logging.ScopedLogger
}

// New creates a hub. Call Run on its own goroutine before accepting
// connections.
func New(logger *logging.ScopedLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub control loop. It exits when Stop is called, closing
// every client's outbound queue on the way out.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int32(len(h.clients)))
			h.logger.Info("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			// Unregistering an unknown client is a no-op; teardown can race
			// with Stop.
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int32(len(h.clients)))
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Queue full: drop for this client only. A stuck
					// subscriber never blocks the loop or its peers.
				}
			}

		case <-h.done:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.count.Store(0)
			return
		}
	}
}

// Stop shuts down the control loop and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)
}

// Broadcast queues a message for delivery to every connected client.
// Non-blocking: if the hub's inbound buffer is full the message is
// dropped and logged.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("broadcast buffer full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// HandleWebSocket upgrades the request and runs the connection's reader
// until teardown. Origin checking is permissive: the payload is the same
// read-only state the GET endpoints already serve cross-origin.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(1 << 20)

	client := newClient(conn)
	h.register <- client

	go client.writePump()
	client.readPump()

	h.unregister <- client
	_ = conn.CloseNow()
}
