// internal/app/features/ledger/list.go
package ledger

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/normalize"
	"github.com/dalemusser/boardhub/internal/app/system/timeouts"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"go.uber.org/zap"
)

const pageSize = 50

// ServeList handles GET /admin/ledger - the completion ledger with filtering.
// Payloads (per-recipient results) are included only with ?detail=1.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	itemTypeParam := normalize.Filter(q.Get("item_type"))
	itemID := normalize.QueryParam(q.Get("item_id"))
	kind := strings.ToLower(normalize.Filter(q.Get("kind")))
	source := strings.ToLower(normalize.Filter(q.Get("source")))
	startDate := strings.TrimSpace(q.Get("start_date"))
	endDate := strings.TrimSpace(q.Get("end_date"))
	detail := q.Get("detail") == "1"

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}

	filter := storage.LedgerFilter{
		ItemID: itemID,
		Limit:  pageSize,
		Offset: int64((page - 1) * pageSize),
	}

	if itemTypeParam != "" {
		t := normalize.ItemType(itemTypeParam)
		if !t.Valid() {
			uierrors.WriteError(w, http.StatusBadRequest, "unknown item_type")
			return
		}
		filter.ItemType = t
	}
	if kind != "" {
		if !validKinds[models.LedgerKind(kind)] {
			uierrors.WriteError(w, http.StatusBadRequest, "unknown kind")
			return
		}
		filter.Kind = models.LedgerKind(kind)
	}
	if source != "" {
		if !validSources[models.TriggerSource(source)] {
			uierrors.WriteError(w, http.StatusBadRequest, "unknown source")
			return
		}
		filter.Source = models.TriggerSource(source)
	}

	// Parse dates
	if startDate != "" {
		if t, err := time.Parse("2006-01-02", startDate); err == nil {
			filter.StartTime = &t
		}
	}
	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			// End of day
			endOfDay := t.Add(24*time.Hour - time.Second)
			filter.EndTime = &endOfDay
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "ledger list")
	defer cancel()

	entries, err := h.Ledger.Recent(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "ledger query failed", err, "A database error occurred.")
		return
	}

	total, err := h.Ledger.Count(ctx, filter)
	if err != nil {
		h.ErrLog.LogServerError(w, r, "ledger count failed", err, "A database error occurred.")
		return
	}

	// Resolve actor names for manual triggers in one batch
	actorSet := make(map[string]struct{})
	for _, e := range entries {
		if e.ActorID != "" {
			actorSet[e.ActorID] = struct{}{}
		}
	}
	actorNames := make(map[string]string, len(actorSet))
	if len(actorSet) > 0 {
		ids := make([]string, 0, len(actorSet))
		for id := range actorSet {
			ids = append(ids, id)
		}
		users, err := h.Roster.UsersByIDs(ctx, ids)
		if err != nil {
			h.Log.Warn("failed to fetch actor names for ledger", zap.Error(err))
		} else {
			for _, u := range users {
				actorNames[u.ID] = u.FullName
			}
		}
	}

	items := make([]listItem, 0, len(entries))
	for _, e := range entries {
		item := listItem{
			ID:        e.ID,
			Timestamp: e.CreatedAt,
			Kind:      e.Kind,
			ItemType:  e.ItemType,
			ItemID:    e.ItemID,
			Title:     e.Payload.Title,
			Episode:   e.Episode,
			Source:    e.Source,
			Forced:    e.Forced,
			Sent:      e.Payload.Sent,
			Failed:    e.Payload.Failed,
			Error:     e.Payload.Error,
		}
		if e.ActorID != "" {
			if name, ok := actorNames[e.ActorID]; ok {
				item.ActorName = name
			} else {
				item.ActorName = e.ActorID
			}
		}
		if detail {
			payload := e.Payload
			item.Payload = &payload
		}
		items = append(items, item)
	}

	totalPages := int((total + pageSize - 1) / pageSize)
	if totalPages < 1 {
		totalPages = 1
	}

	uierrors.WriteJSON(w, http.StatusOK, listData{
		Items:      items,
		ItemType:   string(filter.ItemType),
		ItemID:     itemID,
		Kind:       kind,
		Source:     source,
		StartDate:  startDate,
		EndDate:    endDate,
		Page:       page,
		TotalPages: totalPages,
		Total:      total,
		Shown:      len(items),
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	})
}
