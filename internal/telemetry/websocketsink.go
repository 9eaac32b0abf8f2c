package telemetry

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSink broadcasts each delivered Record, JSON-free and
// line-oriented like the rest of the telemetry bus, to every currently
// connected WebSocket client: one dedicated writer goroutine per
// connection reading off a buffered channel, non-blocking enqueue,
// drop on a full channel.
type WebSocketSink struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*wsClient]struct{}

	logger *log.Logger
}

type wsClient struct {
	conn      *websocket.Conn
	writeChan chan string
	done      chan struct{}
}

func NewWebSocketSink(logger *log.Logger) *WebSocketSink {
	if logger == nil {
		logger = log.Default()
	}
	return &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns:  make(map[*wsClient]struct{}),
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and registers it as a broadcast
// target until the client disconnects.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("telemetry websocket: upgrade: %v", err)
		return
	}

	client := &wsClient{conn: conn, writeChan: make(chan string, 256), done: make(chan struct{})}

	s.mu.Lock()
	s.conns[client] = struct{}{}
	s.mu.Unlock()

	go s.writer(client)
	go s.reader(client)
}

func (s *WebSocketSink) writer(c *wsClient) {
	defer close(c.done)
	for line := range c.writeChan {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

// reader drains and discards any client-sent frames, purely to detect
// disconnects (this sink is broadcast-only, no subscription filtering).
func (s *WebSocketSink) reader(c *wsClient) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WebSocketSink) remove(c *wsClient) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	close(c.writeChan)
	c.conn.Close()
}

// Deliver broadcasts rec to every connected client, dropping it for any
// client whose write channel is currently full rather than blocking.
func (s *WebSocketSink) Deliver(rec Record) {
	line := rec.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		select {
		case c.writeChan <- line:
		default:
			// slow client, drop this record for it
		}
	}
}
