// internal/domain/models/ballot.go
package models

import (
	"time"

	"github.com/dalemusser/boardhub/internal/domain/voting"
)

// MaxCommentLength is the maximum ballot comment length in characters.
const MaxCommentLength = 1000

// Ballot is one voter's choice on one item. There is at most one ballot per
// (ItemID, VoterID); a resubmission updates it in place.
type Ballot struct {
	ID        string        `bson:"_id" json:"id"`
	ItemID    string        `bson:"item_id" json:"item_id"`
	ItemType  ItemType      `bson:"item_type" json:"item_type"`
	VoterID   string        `bson:"voter_id" json:"voter_id"`
	Choice    voting.Choice `bson:"choice" json:"choice"`
	Comment   string        `bson:"comment,omitempty" json:"comment,omitempty"`
	CastAt    time.Time     `bson:"cast_at" json:"cast_at"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// Choices extracts the choices of the given ballots in order.
func Choices(ballots []Ballot) []voting.Choice {
	out := make([]voting.Choice, len(ballots))
	for i, b := range ballots {
		out[i] = b.Choice
	}
	return out
}
