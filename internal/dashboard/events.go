package dashboard

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/watch"
)

// Event types pushed to dashboard clients
const (
	EventContextRefreshed = "context_refreshed"
	EventRefreshFailed    = "refresh_failed"
	EventModuleChanged    = "module_changed"
)

// Event is a message sent to every connected dashboard
type Event struct {
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp"` // Unix timestamp
	Files     []string `json:"files,omitempty"`
	Hash      string   `json:"hash,omitempty"`
	Module    string   `json:"module,omitempty"`
	Action    string   `json:"action,omitempty"`
	Duration  float64  `json:"duration,omitempty"` // Milliseconds
	Error     string   `json:"error,omitempty"`
}

// EventHub fans events out to websocket clients
type EventHub struct {
	connections map[*websocket.Conn]bool
	broadcast   chan *Event
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	closeOnce   sync.Once
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// NewEventHub creates a hub and starts its dispatch loop
func NewEventHub(logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventHub{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan *Event, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     localOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go h.run()

	return h
}

// localOrigin only accepts same-origin or localhost pages
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasPrefix(origin, "http://localhost") ||
		strings.HasPrefix(origin, "https://localhost") ||
		strings.HasPrefix(origin, "http://127.0.0.1") ||
		strings.HasPrefix(origin, "https://127.0.0.1")
}

func (h *EventHub) run() {
	for {
		select {
		case <-h.done:
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.connections[conn] = true
			total := len(h.connections)
			h.mutex.Unlock()
			h.logger.Debug("dashboard client connected", zap.Int("total", total))

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.Close()
			}
			total := len(h.connections)
			h.mutex.Unlock()
			h.logger.Debug("dashboard client disconnected", zap.Int("total", total))

		case event := <-h.broadcast:
			h.sendToAll(event)
		}
	}
}

func (h *EventHub) sendToAll(event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	h.mutex.RLock()
	var failed []*websocket.Conn
	for conn := range h.connections {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("failed to send event", zap.Error(err))
			failed = append(failed, conn)
		}
	}
	h.mutex.RUnlock()

	if len(failed) > 0 {
		h.mutex.Lock()
		for _, conn := range failed {
			if _, ok := h.connections[conn]; ok {
				conn.Close()
				delete(h.connections, conn)
			}
		}
		h.mutex.Unlock()
	}
}

// HandleWebSocket upgrades the request and subscribes the client
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go h.readMessages(conn)
}

// readMessages drains the client side to keep the connection alive
func (h *EventHub) readMessages(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket error", zap.Error(err))
			}
			return
		}
	}
}

// Publish queues an event for every client. Events published after Close
// are dropped.
func (h *EventHub) Publish(event *Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// PublishRefresh turns an indexer refresh into an event
func (h *EventHub) PublishRefresh(e watch.RefreshEvent) {
	event := &Event{
		Type:     EventContextRefreshed,
		Files:    e.Files,
		Duration: float64(e.Duration.Milliseconds()),
	}
	if e.Err != nil {
		event.Type = EventRefreshFailed
		event.Error = e.Err.Error()
	} else if e.Context != nil {
		event.Hash = e.Context.Hash
	}
	h.Publish(event)
}

// ConnectionCount returns the number of connected clients
func (h *EventHub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.connections)
}

// Close disconnects every client and stops the hub
func (h *EventHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mutex.Lock()
		defer h.mutex.Unlock()
		for conn := range h.connections {
			conn.Close()
		}
		h.connections = make(map[*websocket.Conn]bool)
	})
}
