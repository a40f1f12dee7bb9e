package websocket

import (
	"errors"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/protocol"
	"github.com/cory-johannsen/tambola/internal/transport"
)

var (
	// ErrClosed is returned by Send after the connection has closed.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the client is not keeping up.
	// The connection is closed when this happens.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is one WebSocket client. It implements transport.Conn.
//
// Outbound events are queued on a buffered channel drained by a single writer
// goroutine, so Send never blocks and events reach the client in Send order.
type Conn struct {
	id     transport.ID
	raw    *ws.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
	logger *zap.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	pingPeriod   time.Duration
	maxMessage   int64
}

// NewConn wraps an upgraded WebSocket connection.
//
// Precondition: raw must be open; sendBuffer >= 1; pingPeriod < readTimeout.
// Postcondition: Returns a Conn with a fresh ID. No goroutines are started.
func NewConn(raw *ws.Conn, sendBuffer int, readTimeout, writeTimeout, pingPeriod time.Duration, maxMessage int64, logger *zap.Logger) *Conn {
	id := transport.NewID()
	return &Conn{
		id:           id,
		raw:          raw,
		send:         make(chan []byte, sendBuffer),
		closed:       make(chan struct{}),
		logger:       logger.With(zap.String("conn", string(id))),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		pingPeriod:   pingPeriod,
		maxMessage:   maxMessage,
	}
}

// ID returns the connection handle.
func (c *Conn) ID() transport.ID { return c.id }

// IsOpen reports whether Close has not yet been called.
func (c *Conn) IsOpen() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Send encodes ev and queues it for the writer.
//
// Postcondition: Returns nil if ev was queued. A full queue closes the connection.
func (c *Conn) Send(ev protocol.Event) error {
	if !c.IsOpen() {
		return ErrClosed
	}
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		c.logger.Warn("send buffer full, closing", zap.String("kind", string(ev.Kind())))
		c.Close()
		return ErrSendBufferFull
	}
}

// Close marks the connection closed and closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.raw.Close()
	})
}

// readLoop delivers every inbound text frame to onMessage until the socket
// fails or closes.
func (c *Conn) readLoop(onMessage func(raw []byte)) {
	c.raw.SetReadLimit(c.maxMessage)
	_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.raw.SetPongHandler(func(string) error {
		return c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		kind, data, err := c.raw.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway, ws.CloseNoStatusReceived) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		if kind != ws.TextMessage {
			continue
		}
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
		onMessage(data)
	}
}

// writeLoop drains the send queue and pings the client until the connection closes.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.raw.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.raw.WriteControl(ws.PingMessage, nil, deadline); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
