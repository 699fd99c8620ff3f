// internal/app/features/completionhook/routes.go
package completionhook

import "github.com/go-chi/chi/v5"

// Routes returns the webhook router, mounted at /api/completion. Callers
// authenticate with a bearer token rather than a session.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(h.RequireToken)
	r.Post("/", h.ServeComplete)
	r.Get("/", h.ServeRecent)
	return r
}
