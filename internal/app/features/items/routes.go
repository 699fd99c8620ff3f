// internal/app/features/items/routes.go
package items

import (
	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the admin item router, mounted under /admin/items.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleAdmin))
	r.Get("/{itemType}/{itemID}", h.ServeShow)
	r.Post("/{itemType}/{itemID}/open", h.ServeOpen)
	return r
}
