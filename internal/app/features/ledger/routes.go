// internal/app/features/ledger/routes.go
package ledger

import (
	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the ledger listing under the path where this router is
// mounted (typically "/admin/ledger" from bootstrap).
//
// Access is restricted to admins.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Use(sm.RequireRole(models.RoleAdmin))

		pr.Get("/", h.ServeList)
	})

	return r
}
