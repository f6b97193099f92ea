package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"whiteboard/internal/mindmap/model"
	"whiteboard/internal/mindmap/repository"
	"whiteboard/pkg/logger"
)

// Generator proposes the initial nodes of a mind map for a topic.
type Generator interface {
	Generate(ctx context.Context, topic string) ([]map[string]any, error)
}

type MindMapService struct {
	Repo      *repository.MindMapRepository
	Generator Generator
}

func NewMindMapService(repo *repository.MindMapRepository, generator Generator) *MindMapService {
	return &MindMapService{Repo: repo, Generator: generator}
}

// CreateMindMap stores a mind map and fills it with generated nodes. When generation or
// storing the nodes fails the mind map is removed again.
func (s *MindMapService) CreateMindMap(ctx context.Context, name string) (model.MindMapWithNodes, error) {
	name = truncate(strings.TrimSpace(name), model.MaxContentLength)
	if name == "" {
		name = model.DefaultName
	}

	m, err := s.Repo.Create(ctx, uuid.NewString(), name)
	if err != nil {
		return model.MindMapWithNodes{}, err
	}

	generated, err := s.Generator.Generate(ctx, name)
	if err != nil {
		logger.Sugar.Errorf("Mind map generation failed for %s: %v", m.ID, err)
		s.discard(ctx, m.ID)
		return model.MindMapWithNodes{}, err
	}

	nodes := sanitizeNodes(m.ID, generated)
	if err := s.Repo.InsertNodes(ctx, nodes); err != nil {
		s.discard(ctx, m.ID)
		return model.MindMapWithNodes{}, err
	}
	logger.Sugar.Infof("Mind map %s created with %d node(s)", m.ID, len(nodes))
	return model.MindMapWithNodes{MindMap: m, Nodes: nodes}, nil
}

func (s *MindMapService) discard(ctx context.Context, id string) {
	if err := s.Repo.Delete(context.WithoutCancel(ctx), id); err != nil && !errors.Is(err, model.ErrNotFound) {
		logger.Sugar.Errorf("Failed to remove mind map %s after failed generation: %v", id, err)
	}
}

func (s *MindMapService) ListMindMaps(ctx context.Context) ([]model.MindMap, error) {
	return s.Repo.List(ctx)
}

func (s *MindMapService) GetMindMap(ctx context.Context, id string) (model.MindMap, error) {
	if !validID(id) {
		return model.MindMap{}, model.ErrNotFound
	}
	return s.Repo.Get(ctx, id)
}

// DeleteMindMap removes the mind map together with all of its nodes.
func (s *MindMapService) DeleteMindMap(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	return s.Repo.Delete(ctx, id)
}

func (s *MindMapService) Nodes(ctx context.Context, mindmapID string) ([]model.Node, error) {
	if !validID(mindmapID) {
		return nil, model.ErrNotFound
	}
	if _, err := s.Repo.Get(ctx, mindmapID); err != nil {
		return nil, err
	}
	return s.Repo.ListNodes(ctx, mindmapID)
}

func (s *MindMapService) ListAllNodes(ctx context.Context) ([]model.Node, error) {
	return s.Repo.ListAllNodes(ctx)
}

func (s *MindMapService) GetNode(ctx context.Context, id string) (model.Node, error) {
	if !validID(id) {
		return model.Node{}, model.ErrNotFound
	}
	return s.Repo.GetNode(ctx, id)
}

func (s *MindMapService) CreateNode(ctx context.Context, req model.CreateNodeRequest) (model.Node, error) {
	if !validID(req.MindMapID) {
		return model.Node{}, fmt.Errorf("%w: mindmap must be a UUID", model.ErrInvalidInput)
	}
	if _, err := s.Repo.Get(ctx, req.MindMapID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Node{}, fmt.Errorf("%w: mindmap does not exist", model.ErrInvalidInput)
		}
		return model.Node{}, err
	}
	if err := checkContent(req.Content); err != nil {
		return model.Node{}, err
	}
	metadata, err := normalizeMetadata(req.Metadata)
	if err != nil {
		return model.Node{}, err
	}

	n := model.Node{
		ID:        uuid.NewString(),
		MindMapID: req.MindMapID,
		Content:   req.Content,
		Metadata:  metadata,
	}
	if req.ParentID != nil {
		if err := s.checkParent(ctx, n, *req.ParentID); err != nil {
			return model.Node{}, err
		}
		n.ParentID = req.ParentID
	}

	if err := s.Repo.CreateNode(ctx, n); err != nil {
		return model.Node{}, err
	}
	return n, nil
}

// UpdateNode applies a partial update. Moving a node under itself or one of its
// descendants fails with ErrCycle.
func (s *MindMapService) UpdateNode(ctx context.Context, id string, req model.UpdateNodeRequest) (model.Node, error) {
	if !validID(id) {
		return model.Node{}, model.ErrNotFound
	}
	n, err := s.Repo.GetNode(ctx, id)
	if err != nil {
		return model.Node{}, err
	}

	if req.Content != nil {
		if err := checkContent(*req.Content); err != nil {
			return model.Node{}, err
		}
		n.Content = *req.Content
	}
	if req.Metadata != nil {
		if n.Metadata, err = normalizeMetadata(req.Metadata); err != nil {
			return model.Node{}, err
		}
	}
	if req.Parent.Set {
		if req.Parent.Value == nil {
			n.ParentID = nil
		} else {
			if err := s.checkParent(ctx, n, *req.Parent.Value); err != nil {
				return model.Node{}, err
			}
			parentID := *req.Parent.Value
			n.ParentID = &parentID
		}
	}

	if err := s.Repo.UpdateNode(ctx, n); err != nil {
		return model.Node{}, err
	}
	return n, nil
}

func (s *MindMapService) DeleteNode(ctx context.Context, id string) error {
	if !validID(id) {
		return model.ErrNotFound
	}
	return s.Repo.DeleteNode(ctx, id)
}

// checkParent verifies parentID is a node of the same mind map that is not n itself
// or one of n's descendants.
func (s *MindMapService) checkParent(ctx context.Context, n model.Node, parentID string) error {
	if !validID(parentID) {
		return fmt.Errorf("%w: parent must be a UUID", model.ErrInvalidInput)
	}
	if parentID == n.ID {
		return model.ErrCycle
	}
	parent, err := s.Repo.GetNode(ctx, parentID)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: parent does not exist", model.ErrInvalidInput)
	}
	if err != nil {
		return err
	}
	if parent.MindMapID != n.MindMapID {
		return fmt.Errorf("%w: parent belongs to another mind map", model.ErrInvalidInput)
	}

	cycle, err := s.Repo.IsAncestor(ctx, n.ID, parentID)
	if err != nil {
		return err
	}
	if cycle {
		return model.ErrCycle
	}
	return nil
}

// sanitizeNodes turns generated objects into storable nodes. Ids that are not UUIDs, or
// repeat an earlier id, are replaced. A parent is kept only when it refers to a node that
// precedes it; anything else becomes a root.
func sanitizeNodes(mindmapID string, generated []map[string]any) []model.Node {
	nodes := make([]model.Node, 0, len(generated))
	seen := make(map[string]struct{}, len(generated))

	for _, g := range generated {
		id := canonicalID(g["id"])
		if _, dup := seen[id]; id == "" || dup {
			id = uuid.NewString()
		}

		var parentID *string
		if pid := canonicalID(g["parent"]); pid != "" {
			if _, ok := seen[pid]; ok {
				parentID = &pid
			}
		}

		content, _ := g["content"].(string)
		metadata := []byte("{}")
		if md, ok := g["metadata"].(map[string]any); ok {
			if b, err := json.Marshal(md); err == nil {
				metadata = b
			}
		}

		seen[id] = struct{}{}
		nodes = append(nodes, model.Node{
			ID:        id,
			MindMapID: mindmapID,
			ParentID:  parentID,
			Content:   truncate(content, model.MaxContentLength),
			Metadata:  metadata,
		})
	}
	return nodes
}

func canonicalID(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return ""
	}
	return u.String()
}

func checkContent(content string) error {
	if len([]rune(content)) > model.MaxContentLength {
		return fmt.Errorf("%w: content is longer than %d characters", model.ErrInvalidInput, model.MaxContentLength)
	}
	return nil
}

// normalizeMetadata accepts a JSON object or null; null and absent become {}.
func normalizeMetadata(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: metadata must be an object", model.ErrInvalidInput)
	}
	if obj == nil {
		return json.RawMessage("{}"), nil
	}
	return raw, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
