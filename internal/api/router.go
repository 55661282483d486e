package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/curator"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *curator.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Curation pipeline.
	r.Post("/capture", h.Capture)
	r.Post("/analyze", h.Analyze)
	r.Post("/file", h.File)
	r.Post("/undo", h.Undo)
	r.Post("/correct", h.Correct)

	// Inspection.
	r.Get("/sessions", h.Sessions)
	r.Get("/sessions/{id}", h.Session)
	r.Get("/stats", h.Stats)
	r.Get("/search", h.Search)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
