package model

import (
	"encoding/json"
	"time"
)

const (
	DefaultNoteColor = "#fff9a"
	MaxColorLength   = 7
)

// StickyNote is a note pinned to a board. Position is stored as the client sent it.
type StickyNote struct {
	ID        int64           `json:"id"`
	BoardID   string          `json:"board"`
	UserID    *string         `json:"user"`
	Content   string          `json:"content"`
	Color     string          `json:"color"`
	Position  json.RawMessage `json:"position"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CreateNoteRequest struct {
	BoardID  string          `json:"board"`
	UserID   *string         `json:"user"`
	Content  string          `json:"content"`
	Color    string          `json:"color"`
	Position json.RawMessage `json:"position"`
}

// UpdateNoteRequest changes only the fields that are present.
type UpdateNoteRequest struct {
	Content  *string         `json:"content"`
	Color    *string         `json:"color"`
	Position json.RawMessage `json:"position"`
}
