// internal/domain/models/ledger.go
package models

import "time"

// LedgerKind is the action recorded by a ledger entry.
type LedgerKind string

const (
	LedgerTriggered LedgerKind = "triggered"
	LedgerSent      LedgerKind = "sent"
	LedgerFailed    LedgerKind = "failed"
	// LedgerPreview records a summary delivered while voting was still open.
	// It never counts as the completion summary for the episode.
	LedgerPreview LedgerKind = "preview"
)

// TriggerSource names the surface that started a completion check or dispatch.
type TriggerSource string

const (
	SourcePostBallot TriggerSource = "post_ballot"
	SourceSweep      TriggerSource = "sweep"
	SourceWebhook    TriggerSource = "webhook"
	SourceManual     TriggerSource = "manual"
)

// RecipientStatus is the delivery result for one recipient.
type RecipientStatus struct {
	UserID   string `bson:"user_id" json:"user_id"`
	Name     string `bson:"name" json:"name"`
	Email    string `bson:"email" json:"email"`
	Voted    bool   `bson:"voted" json:"voted"`
	Sent     bool   `bson:"sent" json:"sent"`
	Attempts int    `bson:"attempts" json:"attempts"`
	Error    string `bson:"error,omitempty" json:"error,omitempty"`
}

// LedgerPayload is the snapshot stored with a ledger entry.
type LedgerPayload struct {
	Title      string            `bson:"title,omitempty" json:"title,omitempty"`
	Status     Status            `bson:"status,omitempty" json:"status,omitempty"`
	Reason     CompletionReason  `bson:"reason,omitempty" json:"reason,omitempty"`
	Passed     bool              `bson:"passed" json:"passed"`
	Sent       int               `bson:"sent" json:"sent"`
	Failed     int               `bson:"failed" json:"failed"`
	Recipients []RecipientStatus `bson:"recipients,omitempty" json:"recipients,omitempty"`
	Error      string            `bson:"error,omitempty" json:"error,omitempty"`
}

// LedgerEntry is an immutable record in the completion ledger. Entries are
// appended and never updated or deleted.
type LedgerEntry struct {
	ID        string        `bson:"_id" json:"id"`
	Kind      LedgerKind    `bson:"kind" json:"kind"`
	ItemType  ItemType      `bson:"item_type" json:"item_type"`
	ItemID    string        `bson:"item_id" json:"item_id"`
	Episode   int           `bson:"episode" json:"episode"`
	Source    TriggerSource `bson:"source" json:"source"`
	Forced    bool          `bson:"forced,omitempty" json:"forced,omitempty"`
	ActorID   string        `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	Payload   LedgerPayload `bson:"payload" json:"payload"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
}
