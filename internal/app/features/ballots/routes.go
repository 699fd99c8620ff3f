// internal/app/features/ballots/routes.go
package ballots

import (
	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/boardhub/internal/app/system/authz"
	"github.com/go-chi/chi/v5"
)

// Routes returns the ballot router, mounted under /items. Only eligible
// voter roles may cast or read ballots.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(authz.VoterRoles...))
	r.Post("/{itemType}/{itemID}/ballot", h.ServeCast)
	r.Get("/{itemType}/{itemID}/ballot", h.ServeMine)
	return r
}
