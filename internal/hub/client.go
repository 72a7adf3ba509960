// pattern: Imperative Shell

package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// sendQueueSize bounds a client's outbound queue. Broadcasts beyond
	// this while the writer is stalled are dropped for that client.
	sendQueueSize = 256

	// pingInterval paces keepalive pings on otherwise-idle connections.
	pingInterval = 30 * time.Second
)

// Client is one hub connection: a bounded outbound queue drained by the
// writer pump, plus subscription state recorded by the reader pump.
type Client struct {
	conn *websocket.Conn
	send chan Message

	mu       sync.Mutex
	topics   map[string]bool
	lastSeen time.Time
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan Message, sendQueueSize),
		topics:   make(map[string]bool),
		lastSeen: time.Now(),
	}
}

// Subscribed reports whether the client asked for the given topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

// LastSeen returns when the client last sent anything.
func (c *Client) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// readPump decodes inbound control messages until the connection fails
// or a frame fails to decode. Either way the caller unregisters the
// client afterwards, which closes the send queue and stops the writer.
func (c *Client) readPump() {
	ctx := context.Background()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		c.mu.Lock()
		c.lastSeen = time.Now()
		c.mu.Unlock()

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed frame tears down this connection only.
			return
		}

		if msg.Type == TypeSubscribe {
			c.recordTopics(msg.Payload)
		}
	}
}

// recordTopics stores the topic strings from a subscribe payload.
// Non-string entries are ignored.
func (c *Client) recordTopics(payload any) {
	topics, ok := payload.([]any)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if topic, ok := t.(string); ok {
			c.topics[topic] = true
		}
	}
}

// writePump drains the outbound queue to the wire and sends a keepalive
// ping whenever no application message was due for a full interval.
// Exits when the queue is closed (unregistration) or a write fails.
func (c *Client) writePump() {
	ctx := context.Background()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.CloseNow()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusNormalClosure, "hub shutdown")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.write(ctx, Message{Type: TypePing}); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		// A payload that fails to marshal is a programming error in the
		// broadcaster; skip the message rather than kill the connection.
		return nil
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}
