package socket

import (
	"context"
	"time"

	"whiteboard/internal/board/model"
	"whiteboard/pkg/logger"
)

// EventStore is the durable append-only log of drawing events.
type EventStore interface {
	Append(ctx context.Context, boardID string, author *string, payload map[string]any) (model.DrawingEvent, error)
}

// Publisher forwards an already persisted frame to other server instances.
type Publisher interface {
	Publish(ctx context.Context, boardID, originSession string, frame []byte) error
}

// Engine persists drawing events and fans them out to the rest of the room.
type Engine struct {
	store         EventStore
	rooms         *Registry
	relay         Publisher
	metrics       *Metrics
	appendTimeout time.Duration
}

func NewEngine(store EventStore, rooms *Registry, metrics *Metrics, appendTimeout time.Duration) *Engine {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Engine{store: store, rooms: rooms, metrics: metrics, appendTimeout: appendTimeout}
}

// SetRelay enables cross-instance fan-out. Must be called before traffic starts.
func (e *Engine) SetRelay(p Publisher) {
	e.relay = p
}

// HandleDrawEvent appends the event and, only once the append succeeded, pushes it to every
// member of the board except origin. origin may be nil for events that did not come from a session.
func (e *Engine) HandleDrawEvent(ctx context.Context, origin Member, boardID string, author *string, payload Payload) (model.DrawingEvent, error) {
	if boardID == "" {
		e.metrics.ProtocolViolations.WithLabelValues(DrawEvent).Inc()
		logger.Sugar.Warnf("Ignoring draw_event without board_id from session %s", memberID(origin))
		return model.DrawingEvent{}, ErrMissingBoardID
	}

	appendCtx := ctx
	if e.appendTimeout > 0 {
		var cancel context.CancelFunc
		appendCtx, cancel = context.WithTimeout(ctx, e.appendTimeout)
		defer cancel()
	}

	start := time.Now()
	ev, err := e.store.Append(appendCtx, boardID, author, payload)
	e.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.AppendFailures.Inc()
		logger.Sugar.Errorf("Failed to persist draw_event for board %s: %v", boardID, err)
		if origin != nil {
			e.reportFailure(origin, boardID)
		}
		return model.DrawingEvent{}, err
	}
	e.metrics.EventsPersisted.Inc()

	frame, err := encodeFrame(DrawEvent, payload)
	if err != nil {
		// The event is already durable; replay will still serve it.
		logger.Sugar.Errorf("Error marshalling draw_event for board %s: %v", boardID, err)
		return ev, nil
	}

	originID := memberID(origin)
	e.FanOut(boardID, originID, frame)

	if e.relay != nil {
		if err := e.relay.Publish(ctx, boardID, originID, frame); err != nil {
			e.metrics.RelayMessages.WithLabelValues("failed").Inc()
			logger.Sugar.Warnf("Failed to relay draw_event for board %s: %v", boardID, err)
		}
	}
	return ev, nil
}

// FanOut pushes frame to a snapshot of the board's members, skipping exclude.
// A failed push is logged and does not affect the other recipients.
func (e *Engine) FanOut(boardID, exclude string, frame []byte) int {
	delivered := 0
	for _, m := range e.rooms.MembersOf(boardID) {
		if m.ID() == exclude {
			continue
		}
		if err := m.Push(frame); err != nil {
			e.metrics.Deliveries.WithLabelValues("failed").Inc()
			logger.Sugar.Warnf("Failed to deliver to session %s in board %s: %v", m.ID(), boardID, err)
			continue
		}
		e.metrics.Deliveries.WithLabelValues("ok").Inc()
		delivered++
	}
	return delivered
}

// Deliver fans out a frame persisted by another instance. It matches DeliverFunc.
func (e *Engine) Deliver(boardID, originSession string, frame []byte) {
	e.FanOut(boardID, originSession, frame)
}

func (e *Engine) reportFailure(origin Member, boardID string) {
	frame, err := encodeFrame(ErrorEvent, ErrorData{
		Event:   DrawEvent,
		BoardID: boardID,
		Message: "failed to persist drawing event",
	})
	if err != nil {
		return
	}
	if err := origin.Push(frame); err != nil {
		logger.Sugar.Warnf("Could not report append failure to session %s: %v", origin.ID(), err)
	}
}

func memberID(m Member) string {
	if m == nil {
		return ""
	}
	return m.ID()
}
