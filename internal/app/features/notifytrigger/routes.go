// internal/app/features/notifytrigger/routes.go
package notifytrigger

import (
	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes returns the trigger router, mounted at /admin/notifications.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleAdmin))
	r.Post("/trigger", h.ServeTrigger)
	return r
}
