package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"botinsta/pkg/bot"
	"botinsta/pkg/logger"
)

const (
	// outboxSize bounds how many undelivered messages a client may
	// accumulate before it is considered stalled and dropped
	outboxSize = 256

	writeTimeout = 5 * time.Second
)

// WSMessage is the envelope for every message pushed to dashboard
// clients.
type WSMessage struct {
	Type     string      `json:"type"`
	ServerID string      `json:"server_id"`
	Payload  interface{} `json:"payload,omitempty"`
}

// wsClient is one connected dashboard client. All writes go through
// the outbox and a single writer goroutine, so the hub never writes to
// the socket from a caller's goroutine.
type wsClient struct {
	conn   *websocket.Conn
	outbox chan WSMessage
	done   chan struct{}
	once   sync.Once
}

// Hub fans job events out to connected dashboard clients. It
// implements bot.Notifier; Notify only enqueues, so a stalled client
// never blocks a job runner. A client whose outbox fills is dropped.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logger.Logger

	// serverID lets clients detect a restarted process
	serverID string

	mu      sync.RWMutex
	clients map[*wsClient]bool

	// minInterval throttles chatty per-account progress events.
	// Lifecycle statuses always pass.
	minInterval time.Duration
	throttleMu  sync.Mutex
	throttlers  map[string]*rate.Limiter
}

// NewHub creates a hub. minInterval of zero disables throttling.
func NewHub(minInterval time.Duration, log logger.Logger) *Hub {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is same-origin in practice but may sit
			// behind a proxy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:      log,
		serverID:    uuid.New().String(),
		clients:     make(map[*wsClient]bool),
		minInterval: minInterval,
		throttlers:  make(map[string]*rate.Limiter),
	}
}

// ServerID returns the hub's instance identifier
func (h *Hub) ServerID() string {
	return h.serverID
}

// HandleWS upgrades the connection and registers the client. The read
// loop only exists to detect disconnects; clients never send commands
// over the socket.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:   conn,
		outbox: make(chan WSMessage, outboxSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.InfoWithFields("websocket client connected", map[string]interface{}{
		"remote":  r.RemoteAddr,
		"clients": count,
	})

	go h.writeLoop(client)

	// Greet the client so it can resync after server restarts
	h.send(client, WSMessage{Type: "hello", ServerID: h.serverID})

	go func() {
		defer h.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Notify implements bot.Notifier
func (h *Hub) Notify(event bot.Event) {
	if !h.allow(event) {
		return
	}
	h.Broadcast(WSMessage{Type: "job_event", ServerID: h.serverID, Payload: event})
}

// Broadcast enqueues a message for every connected client
func (h *Hub) Broadcast(msg WSMessage) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.send(client, msg)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.drop(client)
	}
}

// allow applies the per-account throttle. Lifecycle transitions always
// pass so the dashboard never misses a pause or error.
func (h *Hub) allow(event bot.Event) bool {
	if h.minInterval <= 0 {
		return true
	}

	switch event.Status {
	case bot.StatusScheduled, bot.StatusRunning, bot.StatusPaused,
		bot.StatusStopped, bot.StatusError, bot.StatusPostCompleted:
		return true
	}

	h.throttleMu.Lock()
	limiter, ok := h.throttlers[event.Account]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.minInterval), 1)
		h.throttlers[event.Account] = limiter
	}
	h.throttleMu.Unlock()

	return limiter.Allow()
}

// send enqueues one message without blocking. A full outbox means the
// client stopped draining; it gets dropped rather than stalling the
// caller.
func (h *Hub) send(client *wsClient, msg WSMessage) {
	select {
	case client.outbox <- msg:
	case <-client.done:
	default:
		h.logger.Debug("websocket client stalled, dropping")
		h.drop(client)
	}
}

// writeLoop drains the client's outbox onto the socket. It is the only
// goroutine that writes to the connection.
func (h *Hub) writeLoop(client *wsClient) {
	defer h.drop(client)
	for {
		select {
		case msg := <-client.outbox:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Debug("websocket write failed, dropping client")
				return
			}
		case <-client.done:
			return
		}
	}
}

// drop removes and closes a client connection
func (h *Hub) drop(client *wsClient) {
	client.once.Do(func() {
		close(client.done)
		client.conn.Close()

		h.mu.Lock()
		delete(h.clients, client)
		count := len(h.clients)
		h.mu.Unlock()

		h.logger.InfoWithFields("websocket client disconnected", map[string]interface{}{
			"clients": count,
		})
	})
}
