package board

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"whiteboard/internal/board/model"
	"whiteboard/internal/board/service"
	"whiteboard/middleware"
	"whiteboard/pkg/logger"
)

type BoardHandler struct {
	Service *service.BoardService
}

func NewBoardHandler(service *service.BoardService) *BoardHandler {
	return &BoardHandler{Service: service}
}

// Routes mounts the board and drawing endpoints.
func (h *BoardHandler) Routes(r chi.Router) {
	r.Route("/boards", func(r chi.Router) {
		r.Get("/", h.ListBoards)
		r.Post("/create/", h.CreateBoard)
		r.Get("/{id}/", h.GetBoard)
		r.Delete("/{id}/", h.DeleteBoard)
		r.Get("/{id}/state/", h.GetState)
	})
	r.Route("/drawings", func(r chi.Router) {
		r.Get("/", h.ListDrawings)
		r.Post("/", h.CreateDrawing)
		r.Get("/{id}/", h.GetDrawing)
	})
}

func (h *BoardHandler) CreateBoard(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.CreateBoard(r.Context())
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create board: %v", err)
		http.Error(w, "Failed to create board", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateBoardResponse{ID: b.ID, ShareLink: b.ShareLink()})
}

func (h *BoardHandler) ListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.Service.ListBoards(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.GetBoard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BoardHandler) DeleteBoard(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "id")
	if err := h.Service.DeleteBoard(r.Context(), boardID); err != nil {
		writeError(w, err)
		return
	}
	logger.Sugar.Infof("Board %s deleted", boardID)
	w.WriteHeader(http.StatusNoContent)
}

// GetState returns the board's history for replay, optionally after ?since=<RFC3339>.
func (h *BoardHandler) GetState(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			http.Error(w, "Invalid since parameter, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = &t
	}

	state, err := h.Service.State(r.Context(), chi.URLParam(r, "id"), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *BoardHandler) ListDrawings(w http.ResponseWriter, r *http.Request) {
	boardID := r.URL.Query().Get("board")
	if boardID == "" {
		http.Error(w, "Missing board parameter", http.StatusBadRequest)
		return
	}
	events, err := h.Service.ListDrawings(r.Context(), boardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *BoardHandler) GetDrawing(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.GetDrawing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *BoardHandler) CreateDrawing(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDrawingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ev, err := h.Service.CreateDrawing(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
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
	case errors.Is(err, model.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Sugar.Errorf("Handler: request failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
