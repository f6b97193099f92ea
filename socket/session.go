package socket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/pkg/logger"
)

// Session is one live WebSocket connection. Each session runs two goroutines: the
// read pump owns all reads from conn and the write pump owns all writes, since
// gorilla/websocket allows at most one concurrent reader and one concurrent writer.
// Everything else talks to the session through Push.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	userID string

	// mu guards send and closed so that Push never writes to a closed channel.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newSession(hub *Hub, conn *websocket.Conn, id, userID string, buffer int) *Session {
	if buffer < 1 {
		buffer = 1
	}
	return &Session{
		hub:    hub,
		conn:   conn,
		id:     id,
		userID: userID,
		send:   make(chan []byte, buffer),
	}
}

func (s *Session) ID() string { return s.id }

// UserID is the authenticated user behind the connection, empty for anonymous sessions.
func (s *Session) UserID() string { return s.userID }

// Push queues frame for the write pump without blocking. A session whose queue is full
// is considered stalled and gets closed.
func (s *Session) Push(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		logger.Sugar.Warnf("Session %s's send buffer is full. Closing.", s.id)
		s.closeLocked()
		return ErrSendBufferFull
	}
}

// Close stops further pushes; the write pump drains what is queued and closes the socket.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// closeLocked closes the send channel exactly once. The write pump sees the closed
// channel, sends a close frame and tears down the connection.
func (s *Session) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readPump pumps messages from the WebSocket connection to the hub.
//
// Frames are dispatched one at a time on this goroutine, so the draw events of one
// session are persisted and broadcast in the order they were received. The read
// deadline is pushed forward on every pong; a peer that stops answering pings makes
// ReadMessage fail and ends the session.
func (s *Session) readPump() {
	defer func() {
		// Leave every room before the socket goes away so no fan-out can still pick
		// this session from a member snapshot taken after it disconnected.
		s.hub.Disconnect(s)
		s.conn.Close()
	}()

	opts := s.hub.opts
	s.conn.SetReadLimit(opts.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("Session %s read error: %v", s.id, err)
			}
			return
		}
		s.hub.Dispatch(s, raw)
	}
}

// writePump pumps queued frames from the send channel to the WebSocket connection.
//
// It also sends a ping every pingPeriod. Every write gets its own deadline so that a
// peer that stops reading cannot block the pump forever. The pump exits when the send
// channel is closed or a write fails; closing conn then unblocks the read pump.
func (s *Session) writePump() {
	opts := s.hub.opts
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				// The session was closed, tell the peer.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One text frame per event.
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Sugar.Warnf("Session %s write failed: %v", s.id, err)
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
