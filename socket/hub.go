package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whiteboard/internal/board/model"
	"whiteboard/pkg/logger"
)

type Options struct {
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub terminates client connections and routes their events to the registry and the engine.
//
// The hub only tracks which sessions are live. Room membership lives in the Registry,
// and persisting and broadcasting draw events is the Engine's job. A session is added
// by Connect when ServeWs upgrades the request and removed by Disconnect when its read
// pump exits.
type Hub struct {
	Rooms   *Registry
	Engine  *Engine
	opts    Options
	metrics *Metrics

	// ctx outlives individual sessions so a disconnect never cancels an in-flight append.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewHub(rooms *Registry, engine *Engine, opts Options, metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		Rooms:    rooms,
		Engine:   engine,
		opts:     opts,
		metrics:  metrics,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Connect registers the session as live. It has no room membership yet.
func (h *Hub) Connect(s *Session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.metrics.ActiveSessions.Inc()
	logger.Sugar.Infof("Session %s connected (user %q)", s.id, s.userID)
}

// Disconnect purges the session from every room before returning. Repeated calls are no-ops.
//
// The purge happens before the session is closed: once Purge returns no room lists
// the session, so later fan-outs skip it instead of pushing to a closed queue.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	_, live := h.sessions[s.id]
	delete(h.sessions, s.id)
	h.mu.Unlock()

	// 1. Leave all rooms.
	boards := h.Rooms.Purge(s.id)
	// 2. Stop the write pump.
	s.Close()
	if live {
		h.metrics.ActiveSessions.Dec()
		logger.Sugar.Infof("Session %s disconnected, left %d board(s)", s.id, len(boards))
	}
}

// Dispatch decodes one inbound frame and routes it by event name. Malformed frames and
// unknown events are counted and logged, never answered, and the session stays open.
func (h *Hub) Dispatch(s *Session, raw []byte) {
	if s.isClosed() {
		return
	}

	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.metrics.ProtocolViolations.WithLabelValues("unknown").Inc()
		logger.Sugar.Warnf("Error unmarshalling message from session %s: %v", s.id, err)
		return
	}

	switch msg.Event {
	case JoinEvent, LeaveEvent, DrawEvent:
		h.metrics.EventsReceived.WithLabelValues(msg.Event).Inc()
	default:
		h.metrics.ProtocolViolations.WithLabelValues("unknown").Inc()
		logger.Sugar.Warnf("Ignoring unknown event %q from session %s", msg.Event, s.id)
		return
	}

	data, err := decodePayload(msg.Data)
	if err != nil {
		h.metrics.ProtocolViolations.WithLabelValues(msg.Event).Inc()
		logger.Sugar.Warnf("Ignoring %s with bad data from session %s: %v", msg.Event, s.id, err)
		return
	}

	switch msg.Event {
	case JoinEvent:
		h.Join(s, data.BoardID())
	case LeaveEvent:
		h.Leave(s, data.BoardID())
	case DrawEvent:
		h.DrawEvent(s, data)
	}
}

// Join adds the session to the board's room. A missing board id is ignored.
func (h *Hub) Join(s *Session, boardID string) {
	if boardID == "" {
		h.metrics.ProtocolViolations.WithLabelValues(JoinEvent).Inc()
		logger.Sugar.Warnf("Ignoring join without board_id from session %s", s.id)
		return
	}
	if err := h.Rooms.Join(s, boardID); err != nil {
		logger.Sugar.Warnf("Session %s could not join board %s: %v", s.id, boardID, err)
		return
	}
	logger.Sugar.Infof("Session %s joined board %s", s.id, boardID)
}

func (h *Hub) Leave(s *Session, boardID string) {
	if boardID == "" {
		h.metrics.ProtocolViolations.WithLabelValues(LeaveEvent).Inc()
		logger.Sugar.Warnf("Ignoring leave without board_id from session %s", s.id)
		return
	}
	h.Rooms.Leave(s.id, boardID)
	logger.Sugar.Infof("Session %s left board %s", s.id, boardID)
}

// DrawEvent hands the payload to the engine. The payload's user_id wins over the session's user.
func (h *Hub) DrawEvent(s *Session, data Payload) {
	var author *string
	if uid, ok := data.UserID(); ok {
		author = &uid
	} else if s.userID != "" {
		uid := s.userID
		author = &uid
	}
	// Errors are already reported to the session and logged by the engine.
	_, _ = h.Engine.HandleDrawEvent(h.ctx, s, data.BoardID(), author, data)
}

// Publish persists and fans out an event that did not come from a session (REST entry point).
func (h *Hub) Publish(ctx context.Context, boardID string, author *string, data map[string]any) (model.DrawingEvent, error) {
	return h.Engine.HandleDrawEvent(ctx, nil, boardID, author, data)
}

// RemoveBoard empties the room of a deleted board. Sessions stay connected.
func (h *Hub) RemoveBoard(boardID string) {
	evicted := h.Rooms.DropBoard(boardID)
	if len(evicted) > 0 {
		logger.Sugar.Infof("Closed room for deleted board %s (%d session(s))", boardID, len(evicted))
	}
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every session and cancels in-flight work tied to the hub.
// The read pumps then fail, which runs Disconnect for each of them.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	h.cancel()
}

// ServeWs upgrades the request and starts the session's pumps.
//
// The connected frame is queued before the pumps start so it is always the first
// frame the client reads. Each session gets a fresh id; userID is empty for
// anonymous connections.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	s := newSession(hub, conn, uuid.NewString(), userID, hub.opts.SendBuffer)
	hub.Connect(s)

	if frame, err := encodeFrame(ConnectedEvent, ConnectedData{SessionID: s.id}); err == nil {
		_ = s.Push(frame)
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go s.writePump()
	go s.readPump()
}
