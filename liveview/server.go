package liveview

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Server is the HTTP+websocket front end for the live command feed.
type Server struct {
	logger *slog.Logger
	hub    *Hub
	srv    *http.Server

	started atomic.Bool
}

// NewServer builds a Server listening on addr, routed through gorilla/mux
// the way houzhh15-mote's gateway server wires its HTTP routes.
func NewServer(logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	hub := NewHub(logger)

	router := mux.NewRouter()
	s := &Server{logger: logger, hub: hub}
	router.HandleFunc("/ws", s.serveWS)
	router.HandleFunc("/healthz", s.serveHealthz).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Hub returns the underlying broadcast hub so callers can feed it Line
// values directly or query its client count.
func (s *Server) Hub() *Hub { return s.hub }

// BroadcastLine broadcasts a reconstructed command line to all connected
// clients; it satisfies tracer.LineFunc's shape when wrapped as
// func(line string) { s.BroadcastLine(shellID, line) }.
func (s *Server) BroadcastLine(shellID, text string) {
	s.hub.BroadcastLine(Line{
		Type:      "command",
		ShellID:   shellID,
		Text:      text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Start begins serving HTTP in the background. The hub's Run loop is
// started alongside it.
func (s *Server) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.hub.Run()
	go func() {
		s.logger.Info("liveview server starting", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("liveview server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("liveview upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
	}
	s.hub.register <- c

	go s.writePump(c)
	go s.readPump(c)
}

// readPump drains and discards client frames; the feed is one-directional
// (server -> browser), but the read loop must run to process control
// frames (ping/close) and detect disconnects.
func (s *Server) readPump(c *client) {
	defer func() { s.hub.unregister <- c }()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
