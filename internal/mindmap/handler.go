package mindmap

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"whiteboard/internal/mindmap/model"
	"whiteboard/internal/mindmap/service"
	"whiteboard/pkg/logger"
)

type MindMapHandler struct {
	Service *service.MindMapService
}

func NewMindMapHandler(service *service.MindMapService) *MindMapHandler {
	return &MindMapHandler{Service: service}
}

func (h *MindMapHandler) Routes(r chi.Router) {
	r.Route("/mindmaps", func(r chi.Router) {
		r.Get("/", h.ListMindMaps)
		r.Post("/", h.CreateMindMap)
		r.Get("/{id}/", h.GetMindMap)
		r.Delete("/{id}/", h.DeleteMindMap)
		r.Get("/{id}/nodes/", h.ListNodes)
	})
	r.Route("/mindnodes", func(r chi.Router) {
		r.Get("/", h.ListAllNodes)
		r.Post("/", h.CreateNode)
		r.Get("/{id}/", h.GetNode)
		r.Patch("/{id}/", h.UpdateNode)
		r.Delete("/{id}/", h.DeleteNode)
	})
}

func (h *MindMapHandler) CreateMindMap(w http.ResponseWriter, r *http.Request) {
	// An empty body falls back to the default name; a malformed one is rejected before
	// anything is generated.
	var req model.CreateMindMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.Service.CreateMindMap(r.Context(), req.Name)
	if err != nil {
		var genErr *model.GenerationError
		if errors.As(err, &genErr) {
			writeJSON(w, http.StatusBadGateway, genErr)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *MindMapHandler) ListMindMaps(w http.ResponseWriter, r *http.Request) {
	maps, err := h.Service.ListMindMaps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, maps)
}

func (h *MindMapHandler) GetMindMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.GetMindMap(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MindMapHandler) DeleteMindMap(w http.ResponseWriter, r *http.Request) {
	mindmapID := chi.URLParam(r, "id")
	if err := h.Service.DeleteMindMap(r.Context(), mindmapID); err != nil {
		writeError(w, err)
		return
	}
	logger.Sugar.Infof("Mind map %s deleted", mindmapID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MindMapHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.Service.Nodes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *MindMapHandler) ListAllNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.Service.ListAllNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *MindMapHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.GetNode(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *MindMapHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	var req model.CreateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n, err := h.Service.CreateNode(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *MindMapHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n, err := h.Service.UpdateNode(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *MindMapHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteNode(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, model.ErrCycle), errors.Is(err, model.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Sugar.Errorf("Handler: request failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
