// internal/app/features/ledger/types.go
package ledger

import (
	"time"

	"github.com/dalemusser/boardhub/internal/domain/models"
)

// listItem is a single ledger row for display.
type listItem struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Kind      models.LedgerKind     `json:"kind"`
	ItemType  models.ItemType       `json:"item_type"`
	ItemID    string                `json:"item_id"`
	Title     string                `json:"title,omitempty"`
	Episode   int                   `json:"episode"`
	Source    models.TriggerSource  `json:"source"`
	Forced    bool                  `json:"forced"`
	ActorName string                `json:"actor_name,omitempty"` // resolved from ActorID
	Sent      int                   `json:"sent"`
	Failed    int                   `json:"failed"`
	Error     string                `json:"error,omitempty"`
	Payload   *models.LedgerPayload `json:"payload,omitempty"`
}

// listData is the response body of the ledger list.
type listData struct {
	Items []listItem `json:"items"`

	// Filters
	ItemType  string `json:"item_type,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Source    string `json:"source,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`

	// Pagination
	Page       int   `json:"page"`
	TotalPages int   `json:"total_pages"`
	Total      int64 `json:"total"`
	Shown      int   `json:"shown"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

var validKinds = map[models.LedgerKind]bool{
	models.LedgerTriggered: true,
	models.LedgerSent:      true,
	models.LedgerPreview:   true,
	models.LedgerFailed:    true,
}

var validSources = map[models.TriggerSource]bool{
	models.SourcePostBallot: true,
	models.SourceSweep:      true,
	models.SourceWebhook:    true,
	models.SourceManual:     true,
}
