// internal/app/features/notifytrigger/handler.go
package notifytrigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/system/authz"
	"github.com/dalemusser/boardhub/internal/app/system/normalize"
	"github.com/dalemusser/boardhub/internal/app/system/notify"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"go.uber.org/zap"
)

// Dispatcher sends a voting summary on demand.
type Dispatcher interface {
	ForceDispatch(ctx context.Context, ref models.ItemRef, force bool, actorID string) (notify.Result, error)
}

// Handler serves the admin manual notification trigger.
type Handler struct {
	Dispatcher Dispatcher
	ErrLog     *uierrors.ErrorLogger
	Log        *zap.Logger
}

// NewHandler creates a notification trigger Handler.
func NewHandler(d Dispatcher, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Dispatcher: d, ErrLog: errLog, Log: logger}
}

type triggerRequest struct {
	ItemID   string `json:"itemId"`
	ItemType string `json:"itemType"`
	Force    bool   `json:"force"`
}

type triggerResponse struct {
	Success     bool                     `json:"success"`
	Reason      string                   `json:"reason"`
	AlreadySent bool                     `json:"alreadySent"`
	Preview     bool                     `json:"preview"`
	Sent        int                      `json:"sent"`
	Failed      int                      `json:"failed"`
	Status      models.Status            `json:"status,omitempty"`
	Passed      bool                     `json:"passed"`
	Recipients  []models.RecipientStatus `json:"recipients"`
}

// ServeTrigger handles POST /admin/notifications/trigger. Detection is
// skipped; the summary reflects the item as it stands. Without force a
// summary already sent for the current episode is not repeated.
func (h *Handler) ServeTrigger(w http.ResponseWriter, r *http.Request) {
	_, _, actorID, ok := authz.UserCtx(r)
	if !ok {
		uierrors.WriteError(w, http.StatusUnauthorized, "sign in required")
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode trigger request failed", err, "invalid JSON body")
		return
	}
	ref := models.ItemRef{
		Type: normalize.ItemType(req.ItemType),
		ID:   normalize.QueryParam(req.ItemID),
	}
	if ref.ID == "" || !ref.Type.Valid() {
		uierrors.WriteError(w, http.StatusBadRequest, "itemType and itemId are required")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "manual notification")
	defer cancel()

	res, err := h.Dispatcher.ForceDispatch(ctx, ref, req.Force, actorID)
	var de *notify.DeliveryError
	switch {
	case err == nil, errors.As(err, &de):
	case errors.Is(err, notify.ErrRender):
		h.Log.Warn("manual notification could not be rendered",
			zap.String("item_id", ref.ID), zap.Error(err))
		uierrors.WriteJSON(w, http.StatusUnprocessableEntity, triggerResponse{
			Reason:     "summary could not be built for this item",
			Recipients: []models.RecipientStatus{},
		})
		return
	default:
		h.ErrLog.Respond(w, r, "manual notification failed", err)
		return
	}

	h.Log.Info("manual notification",
		zap.String("item_id", ref.ID),
		zap.String("actor_id", actorID),
		zap.Bool("force", req.Force),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Bool("already_sent", res.AlreadySent))

	resp := triggerResponse{
		Success:     err == nil,
		Reason:      reason(res, de),
		AlreadySent: res.AlreadySent,
		Preview:     res.Preview,
		Sent:        res.Sent,
		Failed:      res.Failed,
		Status:      res.Item.Status,
		Passed:      res.Outcome.Passed,
		Recipients:  res.Recipients,
	}
	if resp.Recipients == nil {
		resp.Recipients = []models.RecipientStatus{}
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}

func reason(res notify.Result, de *notify.DeliveryError) string {
	switch {
	case res.AlreadySent && res.Preview:
		return "preview already sent while voting is open; use force to resend"
	case res.AlreadySent:
		return "summary already sent for this vote; use force to resend"
	case de != nil && de.Recipients == 0:
		return "no eligible recipients"
	case de != nil:
		return fmt.Sprintf("delivery failed for all %d recipients", de.Failed)
	case res.Failed > 0:
		return fmt.Sprintf("sent to %d of %d recipients", res.Sent, res.Sent+res.Failed)
	default:
		return fmt.Sprintf("sent to %d recipients", res.Sent)
	}
}
