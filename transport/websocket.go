package transport

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/7-Dany/Stress-Strain/errors"
	"github.com/7-Dany/Stress-Strain/metric"
)

const wsWriteTimeout = 5 * time.Second

// DialWebSocket connects to a record server and queues every text message
// it sends. A normal close from the server ends the stream with io.EOF.
func DialWebSocket(ctx context.Context, url string, registry *metric.MetricsRegistry, logger *slog.Logger) (Source, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.WrapTransient(err, "transport", "DialWebSocket", "dial "+url)
	}

	q, err := newQueueSource(registry, "websocket_source", conn.Close)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	go func() {
		defer q.finish()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn("WebSocket read failed", "url", url, "error", err)
				}
				return
			}
			if err := q.push(data); err != nil {
				return
			}
		}
	}()

	logger.Info("WebSocket source connected", "url", url)
	return q, nil
}

// WebSocketSink serves records to every connected websocket client.
type WebSocketSink struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	connected chan struct{}
	closed    bool
}

// ServeWebSocket starts serving path on listen. ":0" picks a free port.
func ServeWebSocket(listen, path string, logger *slog.Logger) (*WebSocketSink, error) {
	if path == "" {
		path = "/records"
	}
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, errors.WrapTransient(err, "transport", "ServeWebSocket", "listen "+listen)
	}

	s := &WebSocketSink{
		listener:  ln,
		logger:    logger,
		clients:   make(map[*websocket.Conn]struct{}),
		connected: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleUpgrade)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error("WebSocket server failed", "error", err)
		}
	}()
	return s, nil
}

// Addr returns the listening address.
func (s *WebSocketSink) Addr() string {
	return s.listener.Addr().String()
}

// WaitForClient blocks until the first client connects.
func (s *WebSocketSink) WaitForClient(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "WebSocketSink", "WaitForClient", "wait for client")
	}
}

// Clients returns the number of connected clients.
func (s *WebSocketSink) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *WebSocketSink) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	first := len(s.clients) == 0
	s.clients[conn] = struct{}{}
	if first {
		select {
		case <-s.connected:
		default:
			close(s.connected)
		}
	}
	s.mu.Unlock()
	s.logger.Info("WebSocket client connected", "remote", r.RemoteAddr)

	// drain control frames until the client leaves
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(conn)
			return
		}
	}
}

func (s *WebSocketSink) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
}

// Write sends p as one text message to every client. It fails when no
// client is connected.
func (s *WebSocketSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.ErrTransportClosed
	}
	for conn := range s.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, p); err != nil {
			s.logger.Warn("WebSocket write failed, dropping client", "error", err)
			delete(s.clients, conn)
			_ = conn.Close()
		}
	}
	if len(s.clients) == 0 {
		return 0, errors.Wrap(errors.ErrNoConnection, "WebSocketSink", "Write", "broadcast")
	}
	return len(p), nil
}

// Close says goodbye to every client and stops the server.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end of test")
	for conn := range s.clients {
		_ = conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(time.Second))
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
