package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"treetop/internal/logging"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(logging.NopLogger())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

// testClient builds a client with a custom queue size, bypassing the
// websocket handshake.
func testClient(queueSize int) *Client {
	return &Client{
		send:   make(chan Message, queueSize),
		topics: make(map[string]bool),
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := newTestHub(t)

	c := testClient(1)
	h.register <- c
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "client not registered")

	h.unregister <- c
	waitFor(t, func() bool { return h.ClientCount() == 0 }, "client not unregistered")

	// Queue is closed on unregister so the writer can observe completion.
	if _, ok := <-c.send; ok {
		t.Error("expected send queue to be closed after unregister")
	}
}

func TestHub_UnregisterUnknownIsNoop(t *testing.T) {
	h := newTestHub(t)

	registered := testClient(1)
	h.register <- registered
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "client not registered")

	// A client the hub never saw: processing it must not disturb the set.
	h.unregister <- testClient(1)
	h.Broadcast(Message{Type: TypePing})
	waitFor(t, func() bool { return len(registered.send) == 1 }, "broadcast not delivered")

	if h.ClientCount() != 1 {
		t.Errorf("client count = %d, want 1", h.ClientCount())
	}
}

func TestHub_BroadcastDropsOnFullQueue(t *testing.T) {
	h := newTestHub(t)

	healthy1 := testClient(4)
	healthy2 := testClient(4)
	stuck := testClient(1)
	stuck.send <- Message{Type: "old"} // queue already full

	for _, c := range []*Client{healthy1, healthy2, stuck} {
		h.register <- c
	}
	waitFor(t, func() bool { return h.ClientCount() == 3 }, "clients not registered")

	h.Broadcast(Message{Type: TypeWorkspacesUpdated})

	waitFor(t, func() bool {
		return len(healthy1.send) == 1 && len(healthy2.send) == 1
	}, "healthy clients did not receive the broadcast")

	// The stuck client still holds only its stale message.
	if len(stuck.send) != 1 {
		t.Fatalf("stuck client queue length = %d, want 1", len(stuck.send))
	}
	if got := <-stuck.send; got.Type != "old" {
		t.Errorf("stuck client queue head = %q, want the stale message", got.Type)
	}
}

func TestHub_BroadcastFIFOPerClient(t *testing.T) {
	h := newTestHub(t)

	c := testClient(8)
	h.register <- c
	waitFor(t, func() bool { return h.ClientCount() == 1 }, "client not registered")

	for _, typ := range []string{"first", "second", "third"} {
		h.Broadcast(Message{Type: typ})
	}

	waitFor(t, func() bool { return len(c.send) == 3 }, "broadcasts not delivered")
	for _, want := range []string{"first", "second", "third"} {
		if got := <-c.send; got.Type != want {
			t.Errorf("queue order: got %q, want %q", got.Type, want)
		}
	}
}

func TestClient_RecordTopics(t *testing.T) {
	c := testClient(1)

	// Payload as it arrives from JSON decoding: []any with mixed entries.
	c.recordTopics([]any{"workspaces", "agents", 42, nil})

	if !c.Subscribed("workspaces") || !c.Subscribed("agents") {
		t.Error("expected topics to be recorded")
	}
	if c.Subscribed("42") {
		t.Error("non-string payload entries must be ignored")
	}

	// Non-list payload is ignored entirely.
	c.recordTopics("workspaces")
	if c.Subscribed("w") {
		t.Error("string payload must not subscribe anything")
	}
}

func TestHub_WebSocketRoundTrip(t *testing.T) {
	h := newTestHub(t)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	waitFor(t, func() bool { return h.ClientCount() == 1 }, "connection not registered")

	sub, _ := json.Marshal(Message{Type: TypeSubscribe, Payload: []string{"workspaces"}})
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	h.Broadcast(Message{Type: TypeWorkspacesUpdated, Payload: []string{"ws-a"}})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeWorkspacesUpdated {
		t.Errorf("message type = %q, want %q", got.Type, TypeWorkspacesUpdated)
	}

	// Closing the socket cascades into unregistration.
	conn.Close(websocket.StatusNormalClosure, "done")
	waitFor(t, func() bool { return h.ClientCount() == 0 }, "connection not unregistered after close")
}
