package votes_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/store/votes"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
)

// board is the frozen voter set used by most tests.
var board = []string{"v1", "v2", "v3"}

func openItem(t *testing.T, store *votes.Store, voters []string, deadline *time.Time, allowChanges bool) models.VotableItem {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	item, err := store.CreateItem(ctx, models.VotableItem{
		Type:               models.ItemResolution,
		Title:              "Adopt budget",
		MinimumQuorum:      50,
		ApprovalThreshold:  50,
		AllowBallotChanges: allowChanges,
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	opened, err := store.OpenVoting(ctx, item.ID, voters, deadline, time.Now())
	if err != nil {
		t.Fatalf("OpenVoting failed: %v", err)
	}
	return opened
}

func TestStore_CreateAndOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := votes.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	item := openItem(t, store, board, nil, false)
	if item.Status != models.StatusVoting {
		t.Errorf("status: got %q, want voting", item.Status)
	}
	if item.Episode != 1 {
		t.Errorf("episode: got %d, want 1", item.Episode)
	}
	if item.TotalEligibleVoters != 3 {
		t.Errorf("eligible: got %d, want 3", item.TotalEligibleVoters)
	}
	if len(item.EligibleVoterIDs) != 3 || !item.CanVote("v2") || item.CanVote("v9") {
		t.Errorf("unexpected frozen voter set: %v", item.EligibleVoterIDs)
	}

	if _, err := store.OpenVoting(ctx, item.ID, board, nil, time.Now()); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("reopening a voting item: expected ErrConflict, got %v", err)
	}
	if _, err := store.OpenVoting(ctx, "missing", board, nil, time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("opening a missing item: expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpsertBallot_Counts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := votes.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	item := openItem(t, store, board, nil, true)
	now := time.Now()

	casts := []struct {
		voter  string
		choice voting.Choice
	}{
		{"v1", voting.Approve},
		{"v2", voting.Reject},
		{"v3", voting.Abstain},
		{"v2", voting.Approve},
	}
	for _, c := range casts {
		_, err := store.UpsertBallot(ctx, storage.BallotInput{ItemID: item.ID, VoterID: c.voter, Choice: c.choice}, now)
		if err != nil {
			t.Fatalf("UpsertBallot(%s) failed: %v", c.voter, err)
		}
	}

	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.VotesCast != 3 || got.ApproveCount != 2 || got.RejectCount != 0 || got.AbstainCount != 1 {
		t.Errorf("counters: got cast=%d approve=%d reject=%d abstain=%d",
			got.VotesCast, got.ApproveCount, got.RejectCount, got.AbstainCount)
	}

	ballots, err := store.Ballots(ctx, item.ID)
	if err != nil {
		t.Fatalf("Ballots failed: %v", err)
	}
	if len(ballots) != 3 {
		t.Errorf("expected one ballot per voter, got %d", len(ballots))
	}
}

func TestStore_UpsertBallot_Errors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := votes.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	past := time.Now().Add(-time.Minute)
	expired := openItem(t, store, board, &past, false)
	locked := openItem(t, store, board, nil, false)

	if _, err := store.UpsertBallot(ctx, storage.BallotInput{ItemID: locked.ID, VoterID: "v1", Choice: voting.Approve}, time.Now()); err != nil {
		t.Fatalf("first ballot failed: %v", err)
	}

	tests := []struct {
		name string
		in   storage.BallotInput
		want error
	}{
		{name: "deadline passed", in: storage.BallotInput{ItemID: expired.ID, VoterID: "v1", Choice: voting.Approve}, want: storage.ErrDeadlinePassed},
		{name: "changes not allowed", in: storage.BallotInput{ItemID: locked.ID, VoterID: "v1", Choice: voting.Reject}, want: storage.ErrAlreadyVoted},
		{name: "missing item", in: storage.BallotInput{ItemID: "missing", VoterID: "v1", Choice: voting.Approve}, want: storage.ErrNotFound},
		{name: "not eligible", in: storage.BallotInput{ItemID: locked.ID, VoterID: "v9", Choice: voting.Approve}, want: storage.ErrNotEligible},
		{name: "invalid choice", in: storage.BallotInput{ItemID: locked.ID, VoterID: "v2", Choice: "maybe"}, want: voting.ErrInvalidChoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.UpsertBallot(ctx, tt.in, time.Now())
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStore_SetTerminalStatus_SingleWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := votes.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	item := openItem(t, store, []string{"v1"}, nil, false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var applied int64
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.SetTerminalStatus(ctx, item.ID, models.StatusVoting, storage.Terminal{
				Status:      models.StatusApproved,
				Reason:      models.ReasonAllVoted,
				Outcome:     voting.Outcome{Passed: true},
				CompletedAt: time.Now(),
			})
			if err != nil {
				t.Errorf("SetTerminalStatus failed: %v", err)
				return
			}
			mu.Lock()
			applied += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("expected exactly one applied transition, got %d", applied)
	}
	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Status != models.StatusApproved || got.CompletionReason != models.ReasonAllVoted || got.Outcome == nil {
		t.Errorf("unexpected terminal state: %+v", got)
	}
}

func TestStore_ListDueForSweep(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := votes.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	due := openItem(t, store, board, &past, false)
	openItem(t, store, board, &future, false)
	openItem(t, store, board, nil, false)

	items, err := store.ListDueForSweep(ctx, time.Now(), 0)
	if err != nil {
		t.Fatalf("ListDueForSweep failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != due.ID {
		t.Errorf("expected only the expired item, got %d items", len(items))
	}
}

func TestStore_ListCompletedSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := votes.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now()
	complete := func(item models.VotableItem, at time.Time) {
		t.Helper()
		_, err := store.SetTerminalStatus(ctx, item.ID, models.StatusVoting, storage.Terminal{
			Status:      models.StatusRejected,
			Reason:      models.ReasonDeadlineExpired,
			CompletedAt: at,
		})
		if err != nil {
			t.Fatalf("SetTerminalStatus failed: %v", err)
		}
	}

	old := openItem(t, store, board, nil, false)
	recent := openItem(t, store, board, nil, false)
	newest := openItem(t, store, board, nil, false)
	openItem(t, store, board, nil, false)
	complete(old, now.Add(-48*time.Hour))
	complete(newest, now.Add(-time.Minute))
	complete(recent, now.Add(-time.Hour))

	items, err := store.ListCompletedSince(ctx, now.Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatalf("ListCompletedSince failed: %v", err)
	}
	if len(items) != 2 || items[0].ID != recent.ID || items[1].ID != newest.ID {
		t.Errorf("expected the two recent completions oldest first, got %d items", len(items))
	}
}
