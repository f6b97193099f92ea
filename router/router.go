package router

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"whiteboard/config"
	boardHandler "whiteboard/internal/board"
	boardRepository "whiteboard/internal/board/repository"
	boardService "whiteboard/internal/board/service"
	mindmapHandler "whiteboard/internal/mindmap"
	mindmapRepository "whiteboard/internal/mindmap/repository"
	mindmapService "whiteboard/internal/mindmap/service"
	"whiteboard/middleware"
	"whiteboard/pkg/logger"
	"whiteboard/socket"
)

// Setup wires the WebSocket endpoint, the REST API and the ops endpoints.
// reg receives the HTTP metrics and is served on /metrics.
func Setup(db *sql.DB, hub *socket.Hub, cfg *config.Config, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowOrigins))

	r.Get("/healthz", healthz(db))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	auth := middleware.Auth(cfg.Auth.JWTSecret)

	r.Group(func(r chi.Router) {
		r.Use(middleware.HTTPMetrics(reg))
		r.Use(auth)

		// WebSocket
		wsHandler := func(w http.ResponseWriter, r *http.Request) {
			socket.ServeWs(hub, w, r, middleware.UserID(r.Context()))
		}
		r.Get("/ws", wsHandler)
		r.Get("/ws/", wsHandler)

		// REST API
		boardRepo := boardRepository.NewBoardRepository(db)
		boards := boardHandler.NewBoardHandler(boardService.NewBoardService(boardRepo, hub))
		notes := boardHandler.NewNoteHandler(boardService.NewNoteService(boardRepository.NewNoteRepository(db), boardRepo))

		generator := mindmapService.NewGroqGenerator(cfg.MindMap.BaseURL, cfg.MindMap.APIKey, cfg.MindMap.Model, cfg.MindMap.Timeout)
		mindmapRepo := mindmapRepository.NewMindMapRepository(db)
		mindmaps := mindmapHandler.NewMindMapHandler(mindmapService.NewMindMapService(mindmapRepo, generator))

		r.Route("/api", func(r chi.Router) {
			boards.Routes(r)
			notes.Routes(r)
			mindmaps.Routes(r)
		})
	})

	return r
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Sugar.Warnf("Health check failed: %v", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}
