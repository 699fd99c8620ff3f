// Package storage declares the contracts the voting pipeline consumes and the
// errors shared by every backend (MongoDB in store/votes, store/ledger and
// store/users; SQL in store/sqlstore).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
)

var (
	// ErrNotFound is returned when an item or ballot does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVotingClosed is returned when a ballot is cast on an item that is not
	// in the voting status.
	ErrVotingClosed = errors.New("voting is closed")
	// ErrDeadlinePassed is returned when a ballot arrives at or after the
	// item's voting deadline.
	ErrDeadlinePassed = errors.New("voting deadline has passed")
	// ErrAlreadyVoted is returned when a voter resubmits on an item that does
	// not allow ballot changes.
	ErrAlreadyVoted = errors.New("ballot already cast")
	// ErrNotEligible is returned when the voter is not in the voter set frozen
	// when voting opened.
	ErrNotEligible = errors.New("voter is not eligible for this vote")
	// ErrConflict is returned when a conditional write finds the record in an
	// unexpected state.
	ErrConflict = errors.New("conflicting state")
)

// BallotInput is a ballot write request.
type BallotInput struct {
	ItemID  string
	VoterID string
	Choice  voting.Choice
	Comment string
}

// Terminal is the set of fields written when a vote concludes.
type Terminal struct {
	Status      models.Status
	Reason      models.CompletionReason
	Outcome     voting.Outcome
	CompletedAt time.Time
}

// LedgerFilter narrows ledger queries.
type LedgerFilter struct {
	ItemType  models.ItemType
	ItemID    string
	Kind      models.LedgerKind
	Source    models.TriggerSource
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

// DefaultLedgerLimit is used when LedgerFilter.Limit is not positive.
const DefaultLedgerLimit = 100

// VoteStore holds votable items and their ballots.
type VoteStore interface {
	GetItem(ctx context.Context, id string) (models.VotableItem, error)
	CreateItem(ctx context.Context, item models.VotableItem) (models.VotableItem, error)
	// OpenVoting moves a draft or under-review item to voting, freezing the
	// eligible voter set and its size. It returns ErrConflict when the item is
	// in any other status.
	OpenVoting(ctx context.Context, id string, voterIDs []string, deadline *time.Time, now time.Time) (models.VotableItem, error)
	Ballots(ctx context.Context, itemID string) ([]models.Ballot, error)
	Ballot(ctx context.Context, itemID, voterID string) (models.Ballot, error)
	UpsertBallot(ctx context.Context, in BallotInput, now time.Time) (models.Ballot, error)
	// SetTerminalStatus applies t only if the item is still in expected.
	// It returns the number of rows changed (0 or 1).
	SetTerminalStatus(ctx context.Context, itemID string, expected models.Status, t Terminal) (int64, error)
	ListDueForSweep(ctx context.Context, now time.Time, limit int64) ([]models.VotableItem, error)
	// ListCompletedSince returns items in a terminal voting status whose
	// completed_at is at or after since, oldest first.
	ListCompletedSince(ctx context.Context, since time.Time, limit int64) ([]models.VotableItem, error)
}

// Ledger is the append-only completion ledger.
type Ledger interface {
	// FindEntry returns the most recent entry of kind for the item episode,
	// or nil when there is none.
	FindEntry(ctx context.Context, itemID string, episode int, kind models.LedgerKind) (*models.LedgerEntry, error)
	Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)
	Recent(ctx context.Context, filter LedgerFilter) ([]models.LedgerEntry, error)
	Count(ctx context.Context, filter LedgerFilter) (int64, error)
}

// Roster resolves users for eligibility and display.
type Roster interface {
	// EligibleVoters returns active users holding the board_member or admin
	// role. Both item types currently share one roster.
	EligibleVoters(ctx context.Context, itemType models.ItemType) ([]models.User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// Pinger reports backend reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateBallot checks a ballot write against the item it targets, before
// any existing ballot is consulted.
func ValidateBallot(item models.VotableItem, in BallotInput, now time.Time) error {
	if !in.Choice.Valid() {
		return voting.ErrInvalidChoice
	}
	if item.Status != models.StatusVoting {
		return ErrVotingClosed
	}
	if item.DeadlinePassed(now) {
		return ErrDeadlinePassed
	}
	if !item.CanVote(in.VoterID) {
		return ErrNotEligible
	}
	return nil
}

// UniqueVoterIDs drops empty and repeated IDs, keeping first occurrences.
func UniqueVoterIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Tally counts ballots per choice.
func Tally(ballots []models.Ballot) (approve, reject, abstain int) {
	for _, b := range ballots {
		switch b.Choice {
		case voting.Approve:
			approve++
		case voting.Reject:
			reject++
		case voting.Abstain:
			abstain++
		}
	}
	return approve, reject, abstain
}
