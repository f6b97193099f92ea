package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"whiteboard/internal/board/model"
	"whiteboard/internal/board/repository"
)

type NoteService struct {
	Notes  *repository.NoteRepository
	Boards *repository.BoardRepository
}

func NewNoteService(notes *repository.NoteRepository, boards *repository.BoardRepository) *NoteService {
	return &NoteService{Notes: notes, Boards: boards}
}

// ListNotes returns every note, or only those of boardID when it is set.
func (s *NoteService) ListNotes(ctx context.Context, boardID string) ([]model.StickyNote, error) {
	if boardID != "" && !validID(boardID) {
		return nil, fmt.Errorf("%w: board must be a UUID", model.ErrInvalidInput)
	}
	return s.Notes.List(ctx, boardID)
}

func (s *NoteService) GetNote(ctx context.Context, id string) (model.StickyNote, error) {
	noteID, ok := parseSeq(id)
	if !ok {
		return model.StickyNote{}, model.ErrNotFound
	}
	return s.Notes.Get(ctx, noteID)
}

// CreateNote pins a note to an existing board. The payload's user wins over the
// authenticated user, as for drawings.
func (s *NoteService) CreateNote(ctx context.Context, userID string, req model.CreateNoteRequest) (model.StickyNote, error) {
	if !validID(req.BoardID) {
		return model.StickyNote{}, fmt.Errorf("%w: board must be a UUID", model.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Content) == "" {
		return model.StickyNote{}, fmt.Errorf("%w: content is required", model.ErrInvalidInput)
	}
	if !present(req.Position) {
		return model.StickyNote{}, fmt.Errorf("%w: position is required", model.ErrInvalidInput)
	}
	color := req.Color
	if color == "" {
		color = model.DefaultNoteColor
	}
	if err := checkColor(color); err != nil {
		return model.StickyNote{}, err
	}
	if _, err := s.Boards.Get(ctx, req.BoardID); err != nil {
		return model.StickyNote{}, err
	}

	author := req.UserID
	if author == nil && userID != "" {
		author = &userID
	}
	return s.Notes.Create(ctx, model.StickyNote{
		BoardID:  req.BoardID,
		UserID:   author,
		Content:  req.Content,
		Color:    color,
		Position: req.Position,
	})
}

// UpdateNote applies a partial update; an empty color or a null position leaves the
// stored value unchanged.
func (s *NoteService) UpdateNote(ctx context.Context, id string, req model.UpdateNoteRequest) (model.StickyNote, error) {
	n, err := s.GetNote(ctx, id)
	if err != nil {
		return model.StickyNote{}, err
	}

	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return model.StickyNote{}, fmt.Errorf("%w: content may not be blank", model.ErrInvalidInput)
		}
		n.Content = *req.Content
	}
	if req.Color != nil && *req.Color != "" {
		if err := checkColor(*req.Color); err != nil {
			return model.StickyNote{}, err
		}
		n.Color = *req.Color
	}
	if present(req.Position) {
		n.Position = req.Position
	}
	return s.Notes.Update(ctx, n)
}

func (s *NoteService) DeleteNote(ctx context.Context, id string) error {
	noteID, ok := parseSeq(id)
	if !ok {
		return model.ErrNotFound
	}
	return s.Notes.Delete(ctx, noteID)
}

func checkColor(color string) error {
	if len(color) > model.MaxColorLength {
		return fmt.Errorf("%w: color is longer than %d characters", model.ErrInvalidInput, model.MaxColorLength)
	}
	return nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func parseSeq(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil && n > 0
}
