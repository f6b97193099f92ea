package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// StorageError reports that the underlying store could not complete an operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type Board struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShareLink is the client-side path of the board.
func (b Board) ShareLink() string {
	return "/boards/" + b.ID + "/"
}

type CreateBoardResponse struct {
	ID        string `json:"id"`
	ShareLink string `json:"share_link"`
}

// DrawingEvent is one persisted drawing operation. Data is never interpreted.
type DrawingEvent struct {
	ID        int64           `json:"id"`
	BoardID   string          `json:"board"`
	UserID    *string         `json:"user"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

type BoardState struct {
	Events []DrawingEvent `json:"events"`
}

type CreateDrawingRequest struct {
	BoardID string         `json:"board"`
	UserID  *string        `json:"user"`
	Data    map[string]any `json:"data"`
}
