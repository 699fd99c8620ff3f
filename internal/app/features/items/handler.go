// internal/app/features/items/handler.go
package items

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/authz"
	"github.com/dalemusser/boardhub/internal/app/system/normalize"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves admin item lifecycle actions that feed the voting pipeline.
type Handler struct {
	Store  storage.VoteStore
	Roster storage.Roster
	ErrLog *uierrors.ErrorLogger
	Log    *zap.Logger
	Now    func() time.Time
}

// NewHandler creates an items Handler.
func NewHandler(store storage.VoteStore, roster storage.Roster, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Store: store, Roster: roster, ErrLog: errLog, Log: logger, Now: time.Now}
}

// openRequest is the JSON body of the open action.
type openRequest struct {
	// Deadline is RFC 3339. Omit for no deadline.
	Deadline *time.Time `json:"deadline"`
}

func (h *Handler) loadItem(w http.ResponseWriter, r *http.Request) (models.VotableItem, bool) {
	itemType := normalize.ItemType(chi.URLParam(r, "itemType"))
	itemID := normalize.QueryParam(chi.URLParam(r, "itemID"))
	if !itemType.Valid() || itemID == "" {
		uierrors.WriteError(w, http.StatusNotFound, "item not found")
		return models.VotableItem{}, false
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "load item")
	defer cancel()

	item, err := h.Store.GetItem(ctx, itemID)
	if err == nil && item.Type != itemType {
		err = fmt.Errorf("item %s is a %s: %w", itemID, item.Type, storage.ErrNotFound)
	}
	if err != nil {
		h.ErrLog.Respond(w, r, "load item failed", err)
		return models.VotableItem{}, false
	}
	return item, true
}

// ServeShow handles GET /admin/items/{itemType}/{itemID}: the item with its
// counters and, once concluded, its outcome.
func (h *Handler) ServeShow(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"item": item})
}

// ServeOpen handles POST /admin/items/{itemType}/{itemID}/open.
// The eligible voter count is taken from the roster now and frozen for the
// rest of the vote.
func (h *Handler) ServeOpen(w http.ResponseWriter, r *http.Request) {
	item, ok := h.loadItem(w, r)
	if !ok {
		return
	}

	var req openRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			h.ErrLog.LogBadRequest(w, r, "decode open request failed", err, "invalid JSON body")
			return
		}
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if req.Deadline != nil && !req.Deadline.After(now) {
		uierrors.WriteError(w, http.StatusBadRequest, "deadline must be in the future")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "open voting")
	defer cancel()

	roster, err := h.Roster.EligibleVoters(ctx, item.Type)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "load roster failed", err, "internal error")
		return
	}

	voterIDs := make([]string, 0, len(roster))
	for _, u := range roster {
		voterIDs = append(voterIDs, u.ID)
	}

	opened, err := h.Store.OpenVoting(ctx, item.ID, storage.UniqueVoterIDs(voterIDs), req.Deadline, now)
	if err != nil {
		h.ErrLog.Respond(w, r, "open voting failed", err)
		return
	}

	_, _, actorID, _ := authz.UserCtx(r)
	h.Log.Info("voting opened",
		zap.String("item_id", opened.ID),
		zap.String("item_type", string(opened.Type)),
		zap.Int("episode", opened.Episode),
		zap.Int("eligible", opened.TotalEligibleVoters),
		zap.String("actor_id", actorID))

	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"item": opened})
}
