package repository

import (
	"context"
	"database/sql"
	"errors"

	"whiteboard/internal/board/model"
	"whiteboard/pkg/logger"
)

type NoteRepository struct {
	DB *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{DB: db}
}

const noteColumns = "id, board_id, user_id, content, color, position, created_at, updated_at"

func (r *NoteRepository) Create(ctx context.Context, n model.StickyNote) (model.StickyNote, error) {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO sticky_notes (board_id, user_id, content, color, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		n.BoardID, n.UserID, n.Content, n.Color, string(n.Position),
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create sticky note on board %s: %v", n.BoardID, err)
		return model.StickyNote{}, &model.StorageError{Op: "create note", Err: err}
	}
	return n, nil
}

func (r *NoteRepository) Get(ctx context.Context, id int64) (model.StickyNote, error) {
	n, err := scanNote(r.DB.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM sticky_notes WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.StickyNote{}, model.ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get sticky note %d: %v", id, err)
		return model.StickyNote{}, &model.StorageError{Op: "get note", Err: err}
	}
	return n, nil
}

// List returns notes oldest first. An empty boardID lists the notes of every board.
func (r *NoteRepository) List(ctx context.Context, boardID string) ([]model.StickyNote, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if boardID == "" {
		rows, err = r.DB.QueryContext(ctx, "SELECT "+noteColumns+" FROM sticky_notes ORDER BY created_at ASC, id ASC")
	} else {
		rows, err = r.DB.QueryContext(ctx,
			"SELECT "+noteColumns+" FROM sticky_notes WHERE board_id = $1 ORDER BY created_at ASC, id ASC", boardID)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to list sticky notes: %v", err)
		return nil, &model.StorageError{Op: "list notes", Err: err}
	}
	defer rows.Close()

	notes := []model.StickyNote{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, &model.StorageError{Op: "list notes", Err: err}
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.StorageError{Op: "list notes", Err: err}
	}
	return notes, nil
}

func (r *NoteRepository) Update(ctx context.Context, n model.StickyNote) (model.StickyNote, error) {
	err := r.DB.QueryRowContext(ctx,
		`UPDATE sticky_notes SET content = $2, color = $3, position = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		n.ID, n.Content, n.Color, string(n.Position),
	).Scan(&n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StickyNote{}, model.ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to update sticky note %d: %v", n.ID, err)
		return model.StickyNote{}, &model.StorageError{Op: "update note", Err: err}
	}
	return n, nil
}

func (r *NoteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM sticky_notes WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete sticky note %d: %v", id, err)
		return &model.StorageError{Op: "delete note", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (model.StickyNote, error) {
	var (
		n        model.StickyNote
		userID   sql.NullString
		position []byte
	)
	if err := row.Scan(&n.ID, &n.BoardID, &userID, &n.Content, &n.Color, &position, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return model.StickyNote{}, err
	}
	if userID.Valid {
		u := userID.String
		n.UserID = &u
	}
	n.Position = position
	return n, nil
}
