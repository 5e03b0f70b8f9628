package appserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/pkg/models"
)

// replayBufferSize bounds how many events a newly-connected client replays
// before switching to live delivery.
const replayBufferSize = 200

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans out AgentEvents to every WebSocket connection subscribed to a
// session, keeping a short replay buffer per session so a client that
// connects mid-turn still gets recent context. It implements
// agent.EventSink, the same interface the teacher's stream fabric already
// expects as a publisher.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*sessionHub
}

type sessionHub struct {
	mu      sync.Mutex
	replay  []models.AgentEvent
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan models.AgentEvent
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{sessions: map[string]*sessionHub{}}
}

func (h *Hub) session(sessionID string) *sessionHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh, ok := h.sessions[sessionID]
	if !ok {
		sh = &sessionHub{clients: map[*client]struct{}{}}
		h.sessions[sessionID] = sh
	}
	return sh
}

// Emit implements agent.EventSink: broadcast e to every connection
// subscribed to its session and append it to the replay buffer.
func (h *Hub) Emit(ctx context.Context, e models.AgentEvent) {
	sc, ok := agent.StreamContextFromContext(ctx)
	if !ok || sc == nil {
		return
	}
	sh := h.session(sc.SessionID)

	sh.mu.Lock()
	sh.replay = append(sh.replay, e)
	if len(sh.replay) > replayBufferSize {
		sh.replay = sh.replay[len(sh.replay)-replayBufferSize:]
	}
	clients := make([]*client, 0, len(sh.clients))
	for c := range sh.clients {
		clients = append(clients, c)
	}
	sh.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- e:
		default:
			slog.Warn("appserver: dropping event for slow websocket client", "session_id", sc.SessionID)
		}
	}
}

// FileChange bridges a sandbox.FileChangeHook to the event sink, wrapping
// the mutation as a models.AgentEvent the same shape EventEmitter.FileChange
// produces.
func (h *Hub) FileChange(sessionID, path, op string) {
	sh := h.session(sessionID)
	event := models.AgentEvent{
		Version: 1,
		Type:    models.AgentEventFileChange,
		Time:    time.Now(),
		Text:    &models.TextEventPayload{Text: op + " " + path},
	}

	sh.mu.Lock()
	clients := make([]*client, 0, len(sh.clients))
	for c := range sh.clients {
		clients = append(clients, c)
	}
	sh.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- event:
		default:
		}
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection subscribed to
// sessionID, replaying the buffered events before streaming live ones.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan models.AgentEvent, replayBufferSize)}
	sh := h.session(sessionID)

	sh.mu.Lock()
	replay := append([]models.AgentEvent(nil), sh.replay...)
	sh.clients[c] = struct{}{}
	sh.mu.Unlock()

	defer func() {
		sh.mu.Lock()
		delete(sh.clients, c)
		sh.mu.Unlock()
		_ = conn.Close()
	}()

	for _, e := range replay {
		if err := conn.WriteJSON(e); err != nil {
			return err
		}
	}

	go drainIncoming(conn)

	for e := range c.send {
		if err := conn.WriteJSON(e); err != nil {
			return err
		}
	}
	return nil
}

// drainIncoming reads and discards client frames so the connection's
// read deadline/pong handling stays alive; this transport is server-push
// only.
func drainIncoming(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
