// Package websocket serves the lobby protocol over WebSocket connections.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/config"
	"github.com/cory-johannsen/tambola/internal/transport"
)

// Handler consumes connection traffic.
type Handler interface {
	// Register makes c reachable for event delivery. It is called before the
	// first message from c.
	Register(c transport.Conn)
	// HandleMessage processes one inbound text frame from conn.
	HandleMessage(conn transport.ID, raw []byte)
	// HandleClose is called exactly once after conn has closed.
	HandleClose(conn transport.ID)
}

// Acceptor upgrades HTTP requests on the configured path to WebSocket
// connections and pumps each one through a Handler.
type Acceptor struct {
	cfg      config.ServerConfig
	handler  Handler
	logger   *zap.Logger
	upgrader ws.Upgrader

	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[transport.ID]*Conn
	running  bool
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: cfg must satisfy config validation; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, handler Handler, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Lobby pages are served from a separate origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[transport.ID]*Conn),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, a.serveWS)
	a.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
	return a
}

// ListenAndServe binds the listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := NewConn(raw, a.cfg.SendBuffer, a.cfg.ReadTimeout, a.cfg.WriteTimeout, a.cfg.PingPeriod, a.cfg.MaxMessageBytes, a.logger)

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conns[conn.ID()] = conn
	a.wg.Add(1)
	a.mu.Unlock()

	go a.handleConn(conn, r.RemoteAddr)
}

// handleConn runs one connection until it closes.
func (a *Acceptor) handleConn(conn *Conn, addr string) {
	defer a.wg.Done()
	start := time.Now()
	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
		zap.String("conn", string(conn.ID())),
	)

	a.handler.Register(conn)
	go conn.writeLoop()
	conn.readLoop(func(raw []byte) {
		a.handler.HandleMessage(conn.ID(), raw)
	})
	conn.Close()
	a.handler.HandleClose(conn.ID())

	a.mu.Lock()
	delete(a.conns, conn.ID())
	a.mu.Unlock()

	a.logger.Info("client disconnected",
		zap.String("remote_addr", addr),
		zap.String("conn", string(conn.ID())),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop closes the listener and every open connection, then waits for their
// close handling to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	open := make([]*Conn, 0, len(a.conns))
	for _, c := range a.conns {
		open = append(open, c)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	for _, c := range open {
		c.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Len returns the number of open connections.
func (a *Acceptor) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}
