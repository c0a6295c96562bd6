package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"minerva-backend/internal/handlers"
	"minerva-backend/internal/middleware"
	"minerva-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	chatHandler *handlers.ChatHandler,
	conversationHandler *handlers.ConversationHandler,
	documentHandler *handlers.DocumentHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	filesDir string,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Turn limiter (30 req/min per IP) guards the model-backed endpoints
	turnLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Stored uploads and synthesized reply audio
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(filesDir))))

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(turnLimiter.Middleware).Post("/turns", chatHandler.ProcessTurn)
		})

		// ──── Conversation Routes ────
		r.Route("/conversations", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", conversationHandler.List)
			r.Get("/{id}/messages", conversationHandler.GetMessages)
		})

		// ──── Document Routes ────
		r.Route("/documents", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/upload", documentHandler.Upload)
			r.Post("/youtube", documentHandler.IngestYouTube)
			r.Get("/", documentHandler.List)
			r.Get("/{id}", documentHandler.Get)
			r.With(turnLimiter.Middleware).Post("/query", documentHandler.Query)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
