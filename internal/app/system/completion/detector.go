// Package completion decides whether voting on an item has concluded and,
// when it has, applies the terminal status exactly once.
package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/metrics"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"go.uber.org/zap"
)

// Result is the outcome of one completion check.
type Result struct {
	Complete bool
	Reason   models.CompletionReason
	Outcome  *voting.Outcome
	// Item is the item as last read (reloaded after a lost race).
	Item models.VotableItem
	// Applied is true when this call performed the terminal transition.
	Applied bool
	// AlreadyTerminal is true when the item was terminal before this call
	// or another caller won the transition.
	AlreadyTerminal bool
}

// Detector checks items for completion.
type Detector struct {
	Store   storage.VoteStore
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// New creates a Detector with the wall clock.
func New(store storage.VoteStore, logger *zap.Logger, m *metrics.Metrics) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{Store: store, Log: logger, Metrics: m, Now: time.Now}
}

func (d *Detector) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Check evaluates itemID. Re-checking a terminal item is a no-op that returns
// the persisted reason and outcome. Store errors are returned, never folded
// into "not complete".
func (d *Detector) Check(ctx context.Context, itemID string) (Result, error) {
	item, err := d.Store.GetItem(ctx, itemID)
	if err != nil {
		return Result{}, fmt.Errorf("load item %s: %w", itemID, err)
	}

	if item.Status.IsTerminalOutcome() {
		return terminalResult(item), nil
	}
	if item.Status != models.StatusVoting {
		return Result{Item: item}, nil
	}

	all, err := d.Store.Ballots(ctx, itemID)
	if err != nil {
		return Result{}, fmt.Errorf("load ballots for %s: %w", itemID, err)
	}
	ballots := item.CountedBallots(all)
	if ignored := len(all) - len(ballots); ignored > 0 {
		d.Log.Warn("ignoring ballots from voters outside the frozen set",
			zap.String("item_id", itemID), zap.Int("ignored", ignored))
	}

	now := d.now()
	var reason models.CompletionReason
	switch {
	case item.TotalEligibleVoters > 0 && len(ballots) >= item.TotalEligibleVoters:
		reason = models.ReasonAllVoted
	case item.DeadlinePassed(now):
		reason = models.ReasonDeadlineExpired
	default:
		return Result{Item: item}, nil
	}

	outcome, err := voting.Calculate(models.Choices(ballots), item.VotingConfig())
	if err != nil {
		return Result{}, fmt.Errorf("calculate outcome for %s: %w", itemID, err)
	}

	status := models.TerminalStatus(item.Type, outcome.Passed)
	applied, err := d.Store.SetTerminalStatus(ctx, itemID, models.StatusVoting, storage.Terminal{
		Status:      status,
		Reason:      reason,
		Outcome:     outcome,
		CompletedAt: now,
	})
	if err != nil {
		return Result{}, fmt.Errorf("set terminal status for %s: %w", itemID, err)
	}

	if applied == 0 {
		// Another caller completed the item first; report what it persisted.
		d.Metrics.RaceLoss()
		d.Log.Debug("completion race lost",
			zap.String("item_id", itemID),
			zap.String("item_type", string(item.Type)))
		winner, err := d.Store.GetItem(ctx, itemID)
		if err != nil {
			return Result{}, fmt.Errorf("reload item %s: %w", itemID, err)
		}
		if !winner.Status.IsTerminalOutcome() {
			return Result{}, fmt.Errorf("item %s left voting as %q: %w", itemID, winner.Status, storage.ErrConflict)
		}
		return terminalResult(winner), nil
	}

	d.Metrics.Completion(string(item.Type), string(reason), outcome.Passed)
	d.Log.Info("voting completed",
		zap.String("item_id", itemID),
		zap.String("item_type", string(item.Type)),
		zap.Int("episode", item.Episode),
		zap.String("reason", string(reason)),
		zap.String("status", string(status)),
		zap.Int("votes_cast", outcome.VotesCast),
		zap.Int("eligible", outcome.TotalEligible),
		zap.Bool("passed", outcome.Passed))

	item.Status = status
	item.CompletionReason = reason
	item.Outcome = &outcome
	completed := now.UTC()
	item.CompletedAt = &completed

	return Result{
		Complete: true,
		Reason:   reason,
		Outcome:  &outcome,
		Item:     item,
		Applied:  true,
	}, nil
}

func terminalResult(item models.VotableItem) Result {
	return Result{
		Complete:        true,
		Reason:          item.CompletionReason,
		Outcome:         item.Outcome,
		Item:            item,
		AlreadyTerminal: true,
	}
}
