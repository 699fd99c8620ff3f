// Package messaging publishes completion events to the push-notification bus.
package messaging

import (
	"context"
	"time"

	"github.com/dalemusser/boardhub/internal/domain/models"
)

const (
	// EventsStream is the JetStream stream holding BoardHub events.
	EventsStream = "BOARDHUB_EVENTS"
	// SubjectVoteCompleted carries CompletionEvent payloads.
	SubjectVoteCompleted = "boardhub.event.vote.completed"
)

// CompletionEvent announces that voting on an item concluded.
type CompletionEvent struct {
	ItemType          models.ItemType         `json:"itemType"`
	ItemID            string                  `json:"itemId"`
	Title             string                  `json:"title"`
	Episode           int                     `json:"episode"`
	Status            models.Status           `json:"status"`
	Reason            models.CompletionReason `json:"reason"`
	Passed            bool                    `json:"passed"`
	VotesCast         int                     `json:"votesCast"`
	TotalEligible     int                     `json:"totalEligible"`
	ParticipationRate float64                 `json:"participationRate"`
	CompletedAt       time.Time               `json:"completedAt"`
}

// EventFromItem builds the event for a terminal item.
func EventFromItem(item models.VotableItem) CompletionEvent {
	ev := CompletionEvent{
		ItemType: item.Type,
		ItemID:   item.ID,
		Title:    item.Title,
		Episode:  item.Episode,
		Status:   item.Status,
		Reason:   item.CompletionReason,
	}
	if item.Outcome != nil {
		ev.Passed = item.Outcome.Passed
		ev.VotesCast = item.Outcome.VotesCast
		ev.TotalEligible = item.Outcome.TotalEligible
		ev.ParticipationRate = item.Outcome.ParticipationRate
	}
	if item.CompletedAt != nil {
		ev.CompletedAt = item.CompletedAt.UTC()
	}
	return ev
}

// Publisher sends completion events.
type Publisher interface {
	PublishCompleted(ctx context.Context, ev CompletionEvent) error
}

// NopPublisher discards events. Used when no bus is configured.
type NopPublisher struct{}

func (NopPublisher) PublishCompleted(context.Context, CompletionEvent) error { return nil }
