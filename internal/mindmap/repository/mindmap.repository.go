package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard/internal/mindmap/model"
	"whiteboard/pkg/logger"
)

type MindMapRepository struct {
	DB *sql.DB
}

func NewMindMapRepository(db *sql.DB) *MindMapRepository {
	return &MindMapRepository{DB: db}
}

func (r *MindMapRepository) Create(ctx context.Context, id, name string) (model.MindMap, error) {
	m := model.MindMap{ID: id, Name: name}
	err := r.DB.QueryRowContext(ctx,
		"INSERT INTO mindmaps (id, name) VALUES ($1, $2) RETURNING created_at", id, name).Scan(&m.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create mind map: %v", err)
		return model.MindMap{}, fmt.Errorf("create mind map: %w", err)
	}
	return m, nil
}

func (r *MindMapRepository) Get(ctx context.Context, id string) (model.MindMap, error) {
	var m model.MindMap
	err := r.DB.QueryRowContext(ctx, "SELECT id, name, created_at FROM mindmaps WHERE id = $1", id).
		Scan(&m.ID, &m.Name, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MindMap{}, model.ErrNotFound
	}
	if err != nil {
		return model.MindMap{}, fmt.Errorf("get mind map: %w", err)
	}
	return m, nil
}

func (r *MindMapRepository) List(ctx context.Context) ([]model.MindMap, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name, created_at FROM mindmaps ORDER BY created_at DESC")
	if err != nil {
		logger.Sugar.Errorf("Failed to list mind maps: %v", err)
		return nil, fmt.Errorf("list mind maps: %w", err)
	}
	defer rows.Close()

	maps := []model.MindMap{}
	for rows.Next() {
		var m model.MindMap
		if err := rows.Scan(&m.ID, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("list mind maps: %w", err)
		}
		maps = append(maps, m)
	}
	return maps, rows.Err()
}

// Delete removes the mind map and, through the cascade, its nodes.
func (r *MindMapRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM mindmaps WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete mind map %s: %v", id, err)
		return fmt.Errorf("delete mind map: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// InsertNodes stores nodes in order inside one transaction.
func (r *MindMapRepository) InsertNodes(ctx context.Context, nodes []model.Node) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO mindmap_nodes (id, mindmap_id, parent_id, content, metadata) VALUES ($1, $2, $3, $4, $5)")
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, n.ID, n.MindMapID, n.ParentID, n.Content, string(n.Metadata)); err != nil {
			logger.Sugar.Errorf("Failed to insert node %s: %v", n.ID, err)
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

const nodeColumns = "id, mindmap_id, parent_id, content, metadata"

func (r *MindMapRepository) ListNodes(ctx context.Context, mindmapID string) ([]model.Node, error) {
	return r.queryNodes(ctx,
		"SELECT "+nodeColumns+" FROM mindmap_nodes WHERE mindmap_id = $1 ORDER BY created_at ASC, id ASC", mindmapID)
}

// ListAllNodes returns the nodes of every mind map, grouped by mind map.
func (r *MindMapRepository) ListAllNodes(ctx context.Context) ([]model.Node, error) {
	return r.queryNodes(ctx,
		"SELECT "+nodeColumns+" FROM mindmap_nodes ORDER BY mindmap_id, created_at ASC, id ASC")
}

func (r *MindMapRepository) queryNodes(ctx context.Context, query string, args ...any) ([]model.Node, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Sugar.Errorf("Failed to list nodes: %v", err)
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []model.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("list nodes: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (r *MindMapRepository) GetNode(ctx context.Context, id string) (model.Node, error) {
	n, err := scanNode(r.DB.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM mindmap_nodes WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Node{}, model.ErrNotFound
	}
	if err != nil {
		return model.Node{}, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (r *MindMapRepository) CreateNode(ctx context.Context, n model.Node) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO mindmap_nodes (id, mindmap_id, parent_id, content, metadata) VALUES ($1, $2, $3, $4, $5)",
		n.ID, n.MindMapID, n.ParentID, n.Content, string(n.Metadata))
	if err != nil {
		logger.Sugar.Errorf("Failed to create node: %v", err)
		return fmt.Errorf("create node: %w", err)
	}
	return nil
}

func (r *MindMapRepository) UpdateNode(ctx context.Context, n model.Node) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE mindmap_nodes SET parent_id = $2, content = $3, metadata = $4, updated_at = NOW() WHERE id = $1",
		n.ID, n.ParentID, n.Content, string(n.Metadata))
	if err != nil {
		logger.Sugar.Errorf("Failed to update node %s: %v", n.ID, err)
		return fmt.Errorf("update node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteNode removes the node and its whole subtree.
func (r *MindMapRepository) DeleteNode(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM mindmap_nodes WHERE id = $1", id)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete node %s: %v", id, err)
		return fmt.Errorf("delete node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// IsAncestor reports whether ancestorID lies on the parent chain of nodeID, nodeID included.
func (r *MindMapRepository) IsAncestor(ctx context.Context, ancestorID, nodeID string) (bool, error) {
	var found bool
	err := r.DB.QueryRowContext(ctx, `
		WITH RECURSIVE chain(id, parent_id) AS (
			SELECT id, parent_id FROM mindmap_nodes WHERE id = $1
			UNION
			SELECT n.id, n.parent_id FROM mindmap_nodes n JOIN chain c ON n.id = c.parent_id
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)`, nodeID, ancestorID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("walk ancestors: %w", err)
	}
	return found, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (model.Node, error) {
	var (
		n        model.Node
		parentID sql.NullString
		metadata []byte
	)
	if err := row.Scan(&n.ID, &n.MindMapID, &parentID, &n.Content, &metadata); err != nil {
		return model.Node{}, err
	}
	if parentID.Valid {
		p := parentID.String
		n.ParentID = &p
	}
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	n.Metadata = json.RawMessage(metadata)
	return n, nil
}
