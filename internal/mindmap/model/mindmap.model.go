package model

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrCycle rejects a parent change that would make a node its own ancestor.
	ErrCycle = errors.New("parent would create a cycle")
)

const DefaultName = "Untitled Mind Map"

// MaxContentLength matches the content column width.
const MaxContentLength = 255

type MindMap struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type MindMapWithNodes struct {
	MindMap
	Nodes []Node `json:"nodes"`
}

type Node struct {
	ID        string          `json:"id"`
	MindMapID string          `json:"mindmap"`
	ParentID  *string         `json:"parent"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata"`
}

type CreateMindMapRequest struct {
	Name string `json:"name"`
}

type CreateNodeRequest struct {
	MindMapID string          `json:"mindmap"`
	ParentID  *string         `json:"parent"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata"`
}

// UpdateNodeRequest is a partial update; absent fields are left unchanged.
type UpdateNodeRequest struct {
	Content  *string         `json:"content"`
	Metadata json.RawMessage `json:"metadata"`
	Parent   OptionalString  `json:"parent"`
}

// OptionalString tells an absent field apart from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// GenerationError describes why a generated mind map could not be used.
// It is rendered as the body of a 502 response.
type GenerationError struct {
	Detail string `json:"detail"`
	Cause  string `json:"error,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

func (e *GenerationError) Error() string {
	if e.Cause != "" {
		return e.Detail + ": " + e.Cause
	}
	return e.Detail
}
