package socket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	JoinEvent      = "join"       // Session enters a board's room
	LeaveEvent     = "leave"      // Session leaves a board's room
	DrawEvent      = "draw_event" // Drawing operation, persisted then fanned out
	ConnectedEvent = "connected"  // Sent once after the upgrade
	ErrorEvent     = "error"      // Operation failure, sent to the originator only
)

var (
	ErrMissingBoardID = errors.New("missing board_id")
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// WSMessage is the frame exchanged in both directions.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Payload is a drawing event as sent by the client. Only board_id and user_id are read.
type Payload map[string]any

func (p Payload) BoardID() string {
	id, _ := p["board_id"].(string)
	return id
}

func (p Payload) UserID() (string, bool) {
	id, ok := p["user_id"].(string)
	return id, ok && id != ""
}

type ErrorData struct {
	Event   string `json:"event"`
	BoardID string `json:"board_id,omitempty"`
	Message string `json:"message"`
}

type ConnectedData struct {
	SessionID string `json:"session_id"`
}

// decodePayload decodes an object keeping numbers verbatim so re-emitted payloads match the input.
func decodePayload(raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty data")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if p == nil {
		return nil, errors.New("data is not an object")
	}
	return p, nil
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{Event: event, Data: raw})
}
