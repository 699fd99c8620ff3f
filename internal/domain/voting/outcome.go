// internal/domain/voting/outcome.go
package voting

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned by Calculate for inconsistent tallies or
// thresholds outside [0,100].
var ErrInvalidInput = errors.New("invalid voting input")

// Config holds the per-item parameters that decide an outcome.
// Percentages are expressed on a 0-100 scale.
type Config struct {
	TotalEligibleVoters int
	MinimumQuorum       float64
	ApprovalThreshold   float64
	RequiresMajority    bool
}

// Outcome is the derived result of a vote.
//
// Policy:
//   - abstentions count toward participation (and therefore quorum) but are
//     excluded from the approval denominator (approve + reject);
//   - with RequiresMajority the approval percentage must be strictly above 50,
//     so an even split fails.
type Outcome struct {
	VotesCast          int     `bson:"votes_cast" json:"votes_cast"`
	Approve            int     `bson:"approve" json:"approve"`
	Reject             int     `bson:"reject" json:"reject"`
	Abstain            int     `bson:"abstain" json:"abstain"`
	TotalEligible      int     `bson:"total_eligible" json:"total_eligible"`
	ParticipationRate  float64 `bson:"participation_rate" json:"participation_rate"`
	ApprovalPercentage float64 `bson:"approval_percentage" json:"approval_percentage"`
	MarginOfVictory    float64 `bson:"margin_of_victory" json:"margin_of_victory"`
	IsUnanimous        bool    `bson:"is_unanimous" json:"is_unanimous"`
	QuorumMet          bool    `bson:"quorum_met" json:"quorum_met"`
	Passed             bool    `bson:"passed" json:"passed"`
}

// Calculate computes the Outcome for the given choices. It never mutates
// choices and has no side effects.
func Calculate(choices []Choice, cfg Config) (Outcome, error) {
	if err := validate(len(choices), cfg); err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		VotesCast:     len(choices),
		TotalEligible: cfg.TotalEligibleVoters,
	}
	for _, c := range choices {
		switch c {
		case Approve:
			out.Approve++
		case Reject:
			out.Reject++
		case Abstain:
			out.Abstain++
		default:
			return Outcome{}, fmt.Errorf("%w: unknown choice %q", ErrInvalidInput, string(c))
		}
	}

	if cfg.TotalEligibleVoters > 0 {
		out.ParticipationRate = percent(out.VotesCast, cfg.TotalEligibleVoters)
	}

	decided := out.Approve + out.Reject
	if decided > 0 {
		out.ApprovalPercentage = percent(out.Approve, decided)
		out.MarginOfVictory = math.Abs(float64(out.Approve-out.Reject)) / float64(decided)
		out.IsUnanimous = out.Approve == decided || out.Reject == decided
	}

	out.QuorumMet = out.ParticipationRate >= cfg.MinimumQuorum
	out.Passed = out.QuorumMet && out.ApprovalPercentage >= cfg.ApprovalThreshold
	if cfg.RequiresMajority && out.ApprovalPercentage <= 50 {
		out.Passed = false
	}
	return out, nil
}

func validate(cast int, cfg Config) error {
	if cfg.TotalEligibleVoters < 0 {
		return fmt.Errorf("%w: negative eligible voter count", ErrInvalidInput)
	}
	if cast > cfg.TotalEligibleVoters {
		return fmt.Errorf("%w: %d votes cast but only %d eligible voters", ErrInvalidInput, cast, cfg.TotalEligibleVoters)
	}
	if !inRange(cfg.MinimumQuorum) {
		return fmt.Errorf("%w: minimum quorum %.2f outside [0,100]", ErrInvalidInput, cfg.MinimumQuorum)
	}
	if !inRange(cfg.ApprovalThreshold) {
		return fmt.Errorf("%w: approval threshold %.2f outside [0,100]", ErrInvalidInput, cfg.ApprovalThreshold)
	}
	return nil
}

func inRange(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

func percent(n, d int) float64 {
	return float64(n) * 100 / float64(d)
}
