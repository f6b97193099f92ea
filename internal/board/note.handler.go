package board

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"whiteboard/internal/board/model"
	"whiteboard/internal/board/service"
	"whiteboard/middleware"
	"whiteboard/pkg/logger"
)

type NoteHandler struct {
	Service *service.NoteService
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{Service: service}
}

// Routes mounts the sticky note endpoints.
func (h *NoteHandler) Routes(r chi.Router) {
	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Get("/{id}/", h.GetNote)
		r.Patch("/{id}/", h.UpdateNote)
		r.Put("/{id}/", h.UpdateNote)
		r.Delete("/{id}/", h.DeleteNote)
	})
}

// ListNotes lists all notes, or one board's notes with ?board=<id>.
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Service.ListNotes(r.Context(), r.URL.Query().Get("board"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req model.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n, err := h.Service.CreateNote(r.Context(), middleware.UserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	n, err := h.Service.UpdateNote(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "id")
	if err := h.Service.DeleteNote(r.Context(), noteID); err != nil {
		writeError(w, err)
		return
	}
	logger.Sugar.Infof("Sticky note %s deleted", noteID)
	w.WriteHeader(http.StatusNoContent)
}
