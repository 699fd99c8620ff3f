// internal/domain/models/votable.go
package models

import (
	"time"

	"github.com/dalemusser/boardhub/internal/domain/voting"
)

// ItemType distinguishes the two kinds of votable items.
type ItemType string

const (
	ItemResolution ItemType = "resolution"
	ItemMinutes    ItemType = "minutes"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemResolution || t == ItemMinutes
}

// Status is the lifecycle status of a votable item.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under_review"
	StatusVoting      Status = "voting"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusPassed      Status = "passed"
	StatusFailed      Status = "failed"
	StatusWithdrawn   Status = "withdrawn"
	StatusArchived    Status = "archived"
)

// IsTerminalOutcome reports whether s is one of the statuses written when a
// vote concludes.
func (s Status) IsTerminalOutcome() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// TerminalStatus returns the status an item of type t moves to when its vote
// concludes with the given verdict.
func TerminalStatus(t ItemType, passed bool) Status {
	if t == ItemMinutes {
		if passed {
			return StatusPassed
		}
		return StatusFailed
	}
	if passed {
		return StatusApproved
	}
	return StatusRejected
}

// CompletionReason records why voting concluded.
type CompletionReason string

const (
	ReasonAllVoted        CompletionReason = "all_voted"
	ReasonDeadlineExpired CompletionReason = "deadline_expired"
)

// VotableItem is a resolution or set of minutes that goes to a vote.
//
// EligibleVoterIDs and TotalEligibleVoters are frozen when voting opens;
// roster changes after that neither add voters nor alter the denominator of
// an in-flight vote. Items opened before voter sets were recorded carry only
// the count. Outcome and CompletionReason are written once, together with
// the terminal status.
type VotableItem struct {
	ID     string   `bson:"_id" json:"id"`
	Type   ItemType `bson:"type" json:"type"`
	Title  string   `bson:"title" json:"title"`
	Status Status   `bson:"status" json:"status"`

	VotingDeadline      *time.Time `bson:"voting_deadline,omitempty" json:"voting_deadline,omitempty"`
	TotalEligibleVoters int        `bson:"total_eligible_voters" json:"total_eligible_voters"`
	EligibleVoterIDs    []string   `bson:"eligible_voter_ids,omitempty" json:"eligible_voter_ids,omitempty"`
	RequiresMajority    bool       `bson:"requires_majority" json:"requires_majority"`
	MinimumQuorum       float64    `bson:"minimum_quorum" json:"minimum_quorum"`
	ApprovalThreshold   float64    `bson:"approval_threshold" json:"approval_threshold"`
	AllowBallotChanges  bool       `bson:"allow_ballot_changes" json:"allow_ballot_changes"`

	// Episode identifies the current voting round for ledger deduplication.
	Episode int `bson:"episode" json:"episode"`

	VotesCast    int `bson:"votes_cast" json:"votes_cast"`
	ApproveCount int `bson:"approve_count" json:"approve_count"`
	RejectCount  int `bson:"reject_count" json:"reject_count"`
	AbstainCount int `bson:"abstain_count" json:"abstain_count"`

	CompletionReason CompletionReason `bson:"completion_reason,omitempty" json:"completion_reason,omitempty"`
	Outcome          *voting.Outcome  `bson:"outcome,omitempty" json:"outcome,omitempty"`

	VotingOpenedAt *time.Time `bson:"voting_opened_at,omitempty" json:"voting_opened_at,omitempty"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
}

// Ref returns the (type, id) reference for the item.
func (v VotableItem) Ref() ItemRef {
	return ItemRef{Type: v.Type, ID: v.ID}
}

// VotingConfig returns the outcome parameters stored on the item.
func (v VotableItem) VotingConfig() voting.Config {
	return voting.Config{
		TotalEligibleVoters: v.TotalEligibleVoters,
		MinimumQuorum:       v.MinimumQuorum,
		ApprovalThreshold:   v.ApprovalThreshold,
		RequiresMajority:    v.RequiresMajority,
	}
}

// CanVote reports whether voterID belongs to the voter set frozen at open.
// Items opened before voter sets were recorded accept any voter the caller
// has authorised, as long as the frozen count is positive.
func (v VotableItem) CanVote(voterID string) bool {
	if len(v.EligibleVoterIDs) == 0 {
		return v.TotalEligibleVoters > 0
	}
	for _, id := range v.EligibleVoterIDs {
		if id == voterID {
			return true
		}
	}
	return false
}

// CountedBallots returns the ballots cast by the frozen voter set, in input
// order. Ballots from anyone else never count toward completion or outcome.
func (v VotableItem) CountedBallots(ballots []Ballot) []Ballot {
	if len(v.EligibleVoterIDs) == 0 {
		return ballots
	}
	allowed := make(map[string]bool, len(v.EligibleVoterIDs))
	for _, id := range v.EligibleVoterIDs {
		allowed[id] = true
	}
	out := make([]Ballot, 0, len(ballots))
	for _, b := range ballots {
		if allowed[b.VoterID] {
			out = append(out, b)
		}
	}
	return out
}

// DeadlinePassed reports whether the voting deadline is set and now is at or
// after it.
func (v VotableItem) DeadlinePassed(now time.Time) bool {
	return v.VotingDeadline != nil && !now.Before(*v.VotingDeadline)
}

// ItemRef identifies a votable item.
type ItemRef struct {
	Type ItemType `json:"itemType"`
	ID   string   `json:"itemId"`
}

func (r ItemRef) String() string {
	return string(r.Type) + "/" + r.ID
}
