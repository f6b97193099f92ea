package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"whiteboard/internal/board/model"
	"whiteboard/pkg/logger"
)

type BoardRepository struct {
	DB *sql.DB
}

func NewBoardRepository(db *sql.DB) *BoardRepository {
	return &BoardRepository{DB: db}
}

func (r *BoardRepository) Create(ctx context.Context, id, name string) (model.Board, error) {
	b := model.Board{ID: id, Name: name}
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO boards (id, name, created_at, updated_at) VALUES ($1, $2, NOW(), NOW()) RETURNING created_at, updated_at`,
		id, name).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create board: %v", err)
		return model.Board{}, &model.StorageError{Op: "create board", Err: err}
	}
	return b, nil
}

func (r *BoardRepository) Get(ctx context.Context, id string) (model.Board, error) {
	var b model.Board
	err := r.DB.QueryRowContext(ctx, "SELECT id, name, created_at, updated_at FROM boards WHERE id = $1", id).
		Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Board{}, model.ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get board %s: %v", id, err)
		return model.Board{}, &model.StorageError{Op: "get board", Err: err}
	}
	return b, nil
}

func (r *BoardRepository) List(ctx context.Context) ([]model.Board, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name, created_at, updated_at FROM boards ORDER BY created_at DESC")
	if err != nil {
		logger.Sugar.Errorf("Failed to list boards: %v", err)
		return nil, &model.StorageError{Op: "list boards", Err: err}
	}
	defer rows.Close()

	boards := []model.Board{}
	for rows.Next() {
		var b model.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, &model.StorageError{Op: "list boards", Err: err}
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// Delete removes the board; its drawing events go with it through ON DELETE CASCADE.
func (r *BoardRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM boards WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete board %s: %v", id, err)
		return &model.StorageError{Op: "delete board", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Append durably records one drawing event. A nil error is the commit point.
func (r *BoardRepository) Append(ctx context.Context, boardID string, author *string, payload map[string]any) (model.DrawingEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.DrawingEvent{}, err
	}

	ev := model.DrawingEvent{BoardID: boardID, UserID: author, Data: data}
	// lib/pq wants a string, not []byte, for JSONB parameters.
	err = r.DB.QueryRowContext(ctx,
		`INSERT INTO drawing_events (board_id, user_id, data, created_at) VALUES ($1, $2, $3, clock_timestamp())
		RETURNING id, created_at`,
		boardID, author, string(data),
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to append drawing event to board %s: %v", boardID, err)
		return model.DrawingEvent{}, &model.StorageError{Op: "append", Err: err}
	}
	return ev, nil
}

// ListSince returns the board's events in creation order. A nil since returns the full history.
func (r *BoardRepository) ListSince(ctx context.Context, boardID string, since *time.Time) ([]model.DrawingEvent, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if since == nil {
		rows, err = r.DB.QueryContext(ctx,
			`SELECT id, board_id, user_id, data, created_at FROM drawing_events
			WHERE board_id = $1 ORDER BY created_at ASC, id ASC`, boardID)
	} else {
		rows, err = r.DB.QueryContext(ctx,
			`SELECT id, board_id, user_id, data, created_at FROM drawing_events
			WHERE board_id = $1 AND created_at > $2 ORDER BY created_at ASC, id ASC`, boardID, *since)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to list events for board %s: %v", boardID, err)
		return nil, &model.StorageError{Op: "list events", Err: err}
	}
	defer rows.Close()

	events := []model.DrawingEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "list events", Err: err}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list events", Err: err}
	}
	return events, nil
}

// GetEvent returns a single drawing event by its sequence id.
func (r *BoardRepository) GetEvent(ctx context.Context, id int64) (model.DrawingEvent, error) {
	ev, err := scanEvent(r.DB.QueryRowContext(ctx,
		"SELECT id, board_id, user_id, data, created_at FROM drawing_events WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.DrawingEvent{}, model.ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get drawing event %d: %v", id, err)
		return model.DrawingEvent{}, &model.StorageError{Op: "get event", Err: err}
	}
	return ev, nil
}

func scanEvent(row rowScanner) (model.DrawingEvent, error) {
	var (
		ev     model.DrawingEvent
		userID sql.NullString
		data   []byte
	)
	if err := row.Scan(&ev.ID, &ev.BoardID, &userID, &data, &ev.CreatedAt); err != nil {
		return model.DrawingEvent{}, err
	}
	if userID.Valid {
		u := userID.String
		ev.UserID = &u
	}
	ev.Data = json.RawMessage(data)
	return ev, nil
}
