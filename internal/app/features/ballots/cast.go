// internal/app/features/ballots/cast.go
package ballots

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/authz"
	"github.com/dalemusser/boardhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/boardhub/internal/app/system/normalize"
	"github.com/dalemusser/boardhub/internal/app/system/ratelimit"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// castRequest is the JSON body of POST /items/{itemType}/{itemID}/ballot.
type castRequest struct {
	Choice  string `json:"choice"`
	Comment string `json:"comment"`
}

// ballotResponse is the JSON shape of a ballot.
type ballotResponse struct {
	ItemType models.ItemType `json:"itemType"`
	ItemID   string          `json:"itemId"`
	Choice   voting.Choice   `json:"choice"`
	Comment  string          `json:"comment"`
	CastAt   time.Time       `json:"castAt"`
	Updated  bool            `json:"updated"`
}

func toResponse(b models.Ballot) ballotResponse {
	return ballotResponse{
		ItemType: b.ItemType,
		ItemID:   b.ItemID,
		Choice:   b.Choice,
		Comment:  b.Comment,
		CastAt:   b.CastAt,
		Updated:  b.UpdatedAt.After(b.CastAt),
	}
}

// ServeCast records the signed-in user's ballot.
//
// Request:  { "choice": "approve|reject|abstain", "comment": "…" }
// Response: 200 { "success": true, "ballot": {…} }
//
// The completion check runs after the write and never fails the request.
func (h *Handler) ServeCast(w http.ResponseWriter, r *http.Request) {
	_, _, userID, ok := authz.UserCtx(r)
	if !ok {
		uierrors.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !authz.CanVote(r) {
		uierrors.WriteError(w, http.StatusForbidden, "only board members and admins may vote")
		return
	}

	itemType := normalize.ItemType(chi.URLParam(r, "itemType"))
	itemID := normalize.QueryParam(chi.URLParam(r, "itemID"))
	if !itemType.Valid() || itemID == "" {
		uierrors.WriteError(w, http.StatusNotFound, "item not found")
		return
	}

	var req castRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		h.ErrLog.LogBadRequest(w, r, "decode ballot failed", err, "invalid JSON body")
		return
	}

	choice, err := voting.ParseChoice(req.Choice)
	if err != nil {
		h.Metrics.Ballot("invalid")
		h.ErrLog.Respond(w, r, "invalid ballot choice", err)
		return
	}
	comment, err := htmlsanitize.Comment(req.Comment)
	if err != nil {
		h.Metrics.Ballot("invalid")
		uierrors.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "cast ballot")
	defer cancel()

	if h.Limiter != nil {
		allowed, err := h.Limiter.Allow(ctx, ratelimit.BallotKey(userID, itemID))
		if err != nil {
			h.Log.Warn("ballot rate limiter unavailable; allowing", zap.Error(err))
		} else if !allowed {
			h.Metrics.RateLimited()
			h.Log.Info("ballot rate limited",
				zap.String("voter_id", userID),
				zap.String("item_id", itemID),
				zap.String("ip", ratelimit.ClientIP(r)))
			uierrors.WriteError(w, http.StatusTooManyRequests, "too many ballot attempts; try again shortly")
			return
		}
	}

	item, err := h.Store.GetItem(ctx, itemID)
	if err == nil && item.Type != itemType {
		err = fmt.Errorf("item %s is a %s: %w", itemID, item.Type, storage.ErrNotFound)
	}
	if err != nil {
		h.ErrLog.Respond(w, r, "load item for ballot failed", err)
		return
	}

	ballot, err := h.Store.UpsertBallot(ctx, storage.BallotInput{
		ItemID:  itemID,
		VoterID: userID,
		Choice:  choice,
		Comment: comment,
	}, h.now())
	if err != nil {
		h.Metrics.Ballot(ballotResult(err))
		h.ErrLog.Respond(w, r, "cast ballot failed", err)
		return
	}
	h.Metrics.Ballot("recorded")

	h.Log.Info("ballot recorded",
		zap.String("item_id", itemID),
		zap.String("item_type", string(itemType)),
		zap.String("voter_id", userID),
		zap.String("choice", string(choice)))

	if h.Hook != nil {
		h.Hook.AfterBallot(r.Context(), item.Ref())
	}

	uierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"ballot":  toResponse(ballot),
	})
}

// ServeMine returns the signed-in user's ballot on the item, or 404.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	_, _, userID, ok := authz.UserCtx(r)
	if !ok {
		uierrors.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	itemType := normalize.ItemType(chi.URLParam(r, "itemType"))
	itemID := normalize.QueryParam(chi.URLParam(r, "itemID"))
	if !itemType.Valid() || itemID == "" {
		uierrors.WriteError(w, http.StatusNotFound, "item not found")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "read ballot")
	defer cancel()

	b, err := h.Store.Ballot(ctx, itemID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			uierrors.WriteError(w, http.StatusNotFound, "no ballot cast")
			return
		}
		h.ErrLog.Respond(w, r, "read ballot failed", err)
		return
	}
	if b.ItemType != itemType {
		uierrors.WriteError(w, http.StatusNotFound, "no ballot cast")
		return
	}
	uierrors.WriteJSON(w, http.StatusOK, map[string]any{"ballot": toResponse(b)})
}

func ballotResult(err error) string {
	switch {
	case errors.Is(err, storage.ErrVotingClosed), errors.Is(err, storage.ErrDeadlinePassed):
		return "closed"
	case errors.Is(err, storage.ErrAlreadyVoted):
		return "duplicate"
	case errors.Is(err, storage.ErrNotEligible):
		return "ineligible"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	}
	return "error"
}
