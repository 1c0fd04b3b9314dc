package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/yegors/co-translate/internal/config"
	"github.com/yegors/co-translate/internal/session"
	"github.com/yegors/co-translate/internal/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

// Router wires the API handlers, the WebSocket endpoint and the static shells
type Router struct {
	handler  *Handler
	static   *StaticFileHandler
	wsServer *websocket.Server
	config   *config.Config
	logger   *logger.Logger
}

// NewRouter creates a new router
func NewRouter(sessionManager *session.Manager, translator TextTranslator, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Router {
	return &Router{
		handler:  NewHandler(sessionManager, translator, cfg, wsServer, log),
		static:   NewStaticFileHandler(cfg.Server.StaticFilesDir, log),
		wsServer: wsServer,
		config:   cfg,
		logger:   log.Named("router"),
	}
}

// Routes returns the HTTP handler shared by every listener
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit := httprate.LimitByIP(rt.config.Server.RateLimitPerMinute, time.Minute)
	h := rt.handler

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Logger)

		r.Get("/health", h.GetHealth)
		r.Get("/languages", h.GetLanguages)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Put("/languages", h.SetLanguages)
			r.Post("/reset", h.ResetSession)
		})

		r.Route("/recording", func(r chi.Router) {
			r.Use(limit)
			r.Post("/start", h.StartRecording)
			r.Post("/chunks", h.PushChunk)
			r.Post("/stop", h.StopRecording)
			r.Post("/abort", h.AbortRecording)
		})

		r.Route("/playback", func(r chi.Router) {
			r.Post("/play", h.Play)
			r.Post("/stop", h.StopPlayback)
		})

		r.With(limit).Post("/translate", h.Translate)
	})

	r.Get("/ws", rt.wsServer.HandleConnection)
	r.Handle("/*", rt.static)

	return r
}
