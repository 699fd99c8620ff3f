// internal/app/features/completionhook/handler.go
package completionhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/hooktoken"
	"github.com/dalemusser/boardhub/internal/app/system/normalize"
	"github.com/dalemusser/boardhub/internal/app/system/notify"
	"github.com/dalemusser/boardhub/internal/app/system/pipeline"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"go.uber.org/zap"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Processor runs the completion pipeline for a webhook call.
type Processor interface {
	Webhook(ctx context.Context, ref models.ItemRef) (pipeline.Outcome, error)
}

// Handler serves the inbound completion webhook.
type Handler struct {
	Pipeline Processor
	Ledger   storage.Ledger
	Signer   *hooktoken.Signer
	ErrLog   *uierrors.ErrorLogger
	Log      *zap.Logger
}

// NewHandler creates a completion webhook Handler.
func NewHandler(p Processor, ledger storage.Ledger, signer *hooktoken.Signer, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{Pipeline: p, Ledger: ledger, Signer: signer, ErrLog: errLog, Log: logger}
}

type completionRequest struct {
	ItemType string `json:"itemType"`
	ItemID   string `json:"itemId"`
}

type completionResponse struct {
	Success   bool                    `json:"success"`
	EmailSent bool                    `json:"emailSent"`
	Completed bool                    `json:"completed"`
	Status    models.Status           `json:"status,omitempty"`
	Reason    models.CompletionReason `json:"reason,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// RequireToken rejects requests without a valid webhook bearer token.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Signer.Enabled() {
			uierrors.WriteError(w, http.StatusServiceUnavailable, "completion webhook is not configured")
			return
		}
		claims, err := h.Signer.FromRequest(r)
		if err != nil {
			h.Log.Warn("webhook authentication failed",
				zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			uierrors.WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.Log.Debug("webhook caller authenticated", zap.String("subject", claims.Subject))
		next.ServeHTTP(w, r)
	})
}

// ServeComplete handles POST /api/completion.
func (h *Handler) ServeComplete(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode completion request failed", err, "invalid JSON body")
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

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "completion webhook")
	defer cancel()

	out, err := h.Pipeline.Webhook(ctx, ref)
	if err != nil {
		var de *notify.DeliveryError
		if errors.As(err, &de) {
			h.Log.Warn("webhook dispatch delivered nothing",
				zap.String("item_id", ref.ID), zap.Error(err))
			uierrors.WriteJSON(w, http.StatusBadGateway, completionResponse{
				Completed: true,
				Error:     "summary could not be delivered",
			})
			return
		}
		h.ErrLog.Respond(w, r, "completion webhook failed", err)
		return
	}

	resp := completionResponse{
		Success:   true,
		EmailSent: out.Notified,
		Completed: out.Completion.Complete,
	}
	if out.Completion.Complete {
		resp.Status = out.Completion.Item.Status
		resp.Reason = out.Completion.Reason
	}
	uierrors.WriteJSON(w, http.StatusOK, resp)
}

// ServeRecent handles GET /api/completion: recent ledger activity, newest
// first. limit defaults to 20 and is capped at 100.
func (h *Handler) ServeRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if s := normalize.QueryParam(r.URL.Query().Get("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			uierrors.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "completion activity")
	defer cancel()

	entries, err := h.Ledger.Recent(ctx, storage.LedgerFilter{
		ItemID: normalize.QueryParam(r.URL.Query().Get("itemId")),
		Limit:  int64(limit),
	})
	if err != nil {
		h.ErrLog.LogServerError(w, r, "ledger query failed", err, "internal error")
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
