package testutil

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// WSClient is a simple WebSocket test client for integration testing.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials url (ws://host:port/path) and returns a test client.
//
// Precondition: url must name a listening WebSocket endpoint.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// Send writes one raw JSON text frame.
func (c *WSClient) Send(raw string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		c.t.Fatalf("sending %q: %v", raw, err)
	}
}

// ReadKind reads frames until one whose "type" equals kind arrives, and
// returns it. Frames of other kinds are discarded.
//
// Postcondition: Returns the matching frame, or fails the test on timeout.
func (c *WSClient) ReadKind(kind string, timeout time.Duration) gjson.Result {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("reading until %q: %v", kind, err)
		}
		msg := gjson.ParseBytes(data)
		if msg.Get("type").Str == kind {
			return msg
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	c.conn.Close()
}
