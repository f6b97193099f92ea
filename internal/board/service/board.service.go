package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"whiteboard/internal/board/model"
	"whiteboard/internal/board/repository"
	"whiteboard/socket"
)

type BoardService struct {
	Repo *repository.BoardRepository
	Hub  *socket.Hub
}

func NewBoardService(repo *repository.BoardRepository, hub *socket.Hub) *BoardService {
	return &BoardService{Repo: repo, Hub: hub}
}

// CreateBoard creates a board named after its own id.
func (s *BoardService) CreateBoard(ctx context.Context) (model.Board, error) {
	id := uuid.NewString()
	return s.Repo.Create(ctx, id, "Room "+id)
}

func (s *BoardService) ListBoards(ctx context.Context) ([]model.Board, error) {
	return s.Repo.List(ctx)
}

func (s *BoardService) GetBoard(ctx context.Context, id string) (model.Board, error) {
	if !validID(id) {
		return model.Board{}, model.ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// DeleteBoard removes the board with its history and closes its live room.
func (s *BoardService) DeleteBoard(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.Hub.RemoveBoard(id)
	return nil
}

// State returns the board's events in the order they were persisted, optionally only
// those created after since.
func (s *BoardService) State(ctx context.Context, id string, since *time.Time) (model.BoardState, error) {
	if _, err := s.GetBoard(ctx, id); err != nil {
		return model.BoardState{}, err
	}
	events, err := s.Repo.ListSince(ctx, id, since)
	if err != nil {
		return model.BoardState{}, err
	}
	return model.BoardState{Events: events}, nil
}

func (s *BoardService) ListDrawings(ctx context.Context, boardID string) ([]model.DrawingEvent, error) {
	if !validID(boardID) {
		return nil, fmt.Errorf("%w: board must be a UUID", model.ErrInvalidInput)
	}
	return s.Repo.ListSince(ctx, boardID, nil)
}

func (s *BoardService) GetDrawing(ctx context.Context, id string) (model.DrawingEvent, error) {
	eventID, ok := parseSeq(id)
	if !ok {
		return model.DrawingEvent{}, model.ErrNotFound
	}
	return s.Repo.GetEvent(ctx, eventID)
}

// CreateDrawing persists an event submitted over HTTP and broadcasts it to every session
// in the board's room. The payload's user wins over the authenticated user.
func (s *BoardService) CreateDrawing(ctx context.Context, userID string, req model.CreateDrawingRequest) (model.DrawingEvent, error) {
	if !validID(req.BoardID) {
		return model.DrawingEvent{}, fmt.Errorf("%w: board must be a UUID", model.ErrInvalidInput)
	}
	if req.Data == nil {
		return model.DrawingEvent{}, fmt.Errorf("%w: data is required", model.ErrInvalidInput)
	}
	if _, err := s.Repo.Get(ctx, req.BoardID); err != nil {
		return model.DrawingEvent{}, err
	}

	author := req.UserID
	if author == nil && userID != "" {
		author = &userID
	}
	return s.Hub.Publish(ctx, req.BoardID, author, req.Data)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
