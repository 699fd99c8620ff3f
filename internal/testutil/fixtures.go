package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/sqlstore"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/google/uuid"
)

// Fixtures provides helper methods for creating test data in a SQL store.
type Fixtures struct {
	st *sqlstore.Store
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given store.
func NewFixtures(t *testing.T, st *sqlstore.Store) *Fixtures {
	t.Helper()
	return &Fixtures{st: st, t: t}
}

// Store returns the underlying store for direct access in tests.
func (f *Fixtures) Store() *sqlstore.Store {
	return f.st
}

// CreateUser creates an active user with the given role.
func (f *Fixtures) CreateUser(ctx context.Context, name, role string) models.User {
	f.t.Helper()

	u, err := f.st.SaveUser(ctx, models.User{
		ID:       uuid.NewString(),
		FullName: name,
		Email:    fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Role:     role,
		Status:   models.UserStatusActive,
	})
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateBoard creates n board members and returns them in creation order.
func (f *Fixtures) CreateBoard(ctx context.Context, n int) []models.User {
	f.t.Helper()

	out := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.CreateUser(ctx, fmt.Sprintf("Member %02d", i+1), models.RoleBoardMember))
	}
	return out
}

// ItemOptions tunes CreateVotingItem.
type ItemOptions struct {
	Type models.ItemType
	// Voters is the frozen eligible voter set. When empty, Eligible sets
	// only the count, as on items opened before voter sets were recorded.
	Voters             []string
	Eligible           int
	Deadline           *time.Time
	MinimumQuorum      float64
	ApprovalThreshold  float64
	RequiresMajority   bool
	AllowBallotChanges bool
}

// CreateVotingItem creates an item and opens voting on it.
func (f *Fixtures) CreateVotingItem(ctx context.Context, opts ItemOptions) models.VotableItem {
	f.t.Helper()

	if opts.Type == "" {
		opts.Type = models.ItemResolution
	}
	item, err := f.st.CreateItem(ctx, models.VotableItem{
		Type:               opts.Type,
		Title:              "Test " + string(opts.Type),
		Status:             models.StatusDraft,
		MinimumQuorum:      opts.MinimumQuorum,
		ApprovalThreshold:  opts.ApprovalThreshold,
		RequiresMajority:   opts.RequiresMajority,
		AllowBallotChanges: opts.AllowBallotChanges,
	})
	if err != nil {
		f.t.Fatalf("failed to create test item: %v", err)
	}
	item, err = f.st.OpenVoting(ctx, item.ID, opts.Voters, opts.Deadline, time.Now())
	if err != nil {
		f.t.Fatalf("failed to open voting: %v", err)
	}
	if len(opts.Voters) == 0 && opts.Eligible > 0 {
		err := f.st.DB().WithContext(ctx).
			Table("votable_items").
			Where("id = ?", item.ID).
			Update("total_eligible_voters", opts.Eligible).Error
		if err != nil {
			f.t.Fatalf("failed to set eligible count: %v", err)
		}
		item.TotalEligibleVoters = opts.Eligible
	}
	return item
}

// VoterIDs returns the IDs of users, in order.
func VoterIDs(users []models.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

// CastBallot records a ballot directly in the store, bypassing HTTP.
func (f *Fixtures) CastBallot(ctx context.Context, itemID, voterID string, c voting.Choice, comment string) models.Ballot {
	f.t.Helper()

	b, err := f.st.UpsertBallot(ctx, storage.BallotInput{
		ItemID:  itemID,
		VoterID: voterID,
		Choice:  c,
		Comment: comment,
	}, time.Now())
	if err != nil {
		f.t.Fatalf("failed to cast ballot: %v", err)
	}
	return b
}
