package completion_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/sqlstore"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/completion"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
)

// countingStore counts applied terminal transitions.
type countingStore struct {
	*sqlstore.Store
	applied atomic.Int64
}

func (s *countingStore) SetTerminalStatus(ctx context.Context, id string, expected models.Status, t storage.Terminal) (int64, error) {
	n, err := s.Store.SetTerminalStatus(ctx, id, expected, t)
	s.applied.Add(n)
	return n, err
}

// racingStore lets a competing writer complete the item just before the
// detector's own conditional update.
type racingStore struct {
	*sqlstore.Store
}

func (s *racingStore) SetTerminalStatus(ctx context.Context, id string, expected models.Status, t storage.Terminal) (int64, error) {
	winner := t
	winner.Reason = models.ReasonDeadlineExpired
	if _, err := s.Store.SetTerminalStatus(ctx, id, expected, winner); err != nil {
		return 0, err
	}
	return s.Store.SetTerminalStatus(ctx, id, expected, t)
}

// failingStore fails ballot reads.
type failingStore struct {
	*sqlstore.Store
}

var errStoreDown = errors.New("store unreachable")

func (s *failingStore) Ballots(context.Context, string) ([]models.Ballot, error) {
	return nil, errStoreDown
}

// extraBallotStore returns ballots the write path would have refused, as
// from rows imported before voter sets were frozen.
type extraBallotStore struct {
	*sqlstore.Store
	extra []models.Ballot
}

func (s *extraBallotStore) Ballots(ctx context.Context, itemID string) ([]models.Ballot, error) {
	bs, err := s.Store.Ballots(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return append(bs, s.extra...), nil
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCheck_AllVoted(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Scenario: 5 eligible voters, 5 approvals.
	board := fx.CreateBoard(ctx, 5)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{
		Eligible: 5, MinimumQuorum: 50, ApprovalThreshold: 50, RequiresMajority: true,
	})
	for _, u := range board {
		fx.CastBallot(ctx, item.ID, u.ID, voting.Approve, "")
	}

	d := completion.New(st, zap.NewNop(), nil)
	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if !res.Complete || !res.Applied {
		t.Fatalf("expected applied completion, got %+v", res)
	}
	if res.Reason != models.ReasonAllVoted {
		t.Errorf("reason: got %q, want all_voted", res.Reason)
	}
	if res.Outcome == nil || !res.Outcome.Passed || !res.Outcome.IsUnanimous {
		t.Fatalf("expected unanimous pass, got %+v", res.Outcome)
	}
	if !approx(res.Outcome.ParticipationRate, 100) || !approx(res.Outcome.ApprovalPercentage, 100) {
		t.Errorf("expected 100%% participation and approval, got %v / %v",
			res.Outcome.ParticipationRate, res.Outcome.ApprovalPercentage)
	}

	stored, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if stored.Status != models.StatusApproved {
		t.Errorf("status: got %q, want approved", stored.Status)
	}
	if stored.Outcome == nil || stored.CompletionReason != models.ReasonAllVoted || stored.CompletedAt == nil {
		t.Error("expected outcome, reason and completed_at to be persisted with the status")
	}
}

func TestCheck_DeadlineExpired(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Scenario: 5 eligible, deadline passes with one approve and one reject.
	board := fx.CreateBoard(ctx, 5)
	deadline := time.Now().Add(time.Hour)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{
		Type: models.ItemMinutes, Eligible: 5, Deadline: &deadline, MinimumQuorum: 50, ApprovalThreshold: 50,
	})
	fx.CastBallot(ctx, item.ID, board[0].ID, voting.Approve, "")
	fx.CastBallot(ctx, item.ID, board[1].ID, voting.Reject, "")

	d := completion.New(st, zap.NewNop(), nil)

	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Complete {
		t.Fatal("expected incomplete before the deadline")
	}

	d.Now = func() time.Time { return deadline.Add(time.Minute) }
	res, err = d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Complete || res.Reason != models.ReasonDeadlineExpired {
		t.Fatalf("expected deadline_expired completion, got %+v", res)
	}
	if !approx(res.Outcome.ParticipationRate, 40) {
		t.Errorf("participation: got %v, want 40", res.Outcome.ParticipationRate)
	}
	if res.Outcome.QuorumMet || res.Outcome.Passed {
		t.Error("expected quorum not met and failed")
	}
	if res.Item.Status != models.StatusFailed {
		t.Errorf("minutes should end failed, got %q", res.Item.Status)
	}
}

func TestCheck_DeadlineBoundaryIsInclusive(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deadline := time.Now().Add(time.Hour).Truncate(time.Second)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3, Deadline: &deadline})

	d := completion.New(st, zap.NewNop(), nil)
	d.Now = func() time.Time { return deadline }
	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Complete || res.Reason != models.ReasonDeadlineExpired {
		t.Errorf("expected completion at exactly the deadline, got %+v", res)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	board := fx.CreateBoard(ctx, 2)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 2, MinimumQuorum: 50, ApprovalThreshold: 50})
	fx.CastBallot(ctx, item.ID, board[0].ID, voting.Approve, "")
	fx.CastBallot(ctx, item.ID, board[1].ID, voting.Reject, "")

	cs := &countingStore{Store: st}
	d := completion.New(cs, zap.NewNop(), nil)

	first, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := d.Check(ctx, item.ID)
		if err != nil {
			t.Fatalf("Check %d failed: %v", i, err)
		}
		if !again.Complete || !again.AlreadyTerminal || again.Applied {
			t.Errorf("check %d: expected terminal no-op, got %+v", i, again)
		}
		if again.Reason != first.Reason {
			t.Errorf("check %d: reason changed from %q to %q", i, first.Reason, again.Reason)
		}
		if again.Outcome == nil || *again.Outcome != *first.Outcome {
			t.Errorf("check %d: outcome changed", i)
		}
	}
	if got := cs.applied.Load(); got != 1 {
		t.Errorf("expected exactly one applied transition, got %d", got)
	}
}

func TestCheck_ConcurrentCallersApplyOnce(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	board := fx.CreateBoard(ctx, 3)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3, MinimumQuorum: 50, ApprovalThreshold: 50})
	for _, u := range board {
		fx.CastBallot(ctx, item.ID, u.ID, voting.Approve, "")
	}

	cs := &countingStore{Store: st}
	d := completion.New(cs, zap.NewNop(), nil)

	var wg sync.WaitGroup
	var applied atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Check(ctx, item.ID)
			if err != nil {
				t.Errorf("Check failed: %v", err)
				return
			}
			if !res.Complete {
				t.Error("expected every caller to observe completion")
			}
			if res.Applied {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	if applied.Load() != 1 || cs.applied.Load() != 1 {
		t.Errorf("expected one applied transition, got %d callers / %d rows", applied.Load(), cs.applied.Load())
	}
}

func TestCheck_RaceLossReportsWinner(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	board := fx.CreateBoard(ctx, 1)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 1})
	fx.CastBallot(ctx, item.ID, board[0].ID, voting.Approve, "")

	d := completion.New(&racingStore{Store: st}, zap.NewNop(), nil)
	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Applied {
		t.Error("expected the race to be lost")
	}
	if !res.Complete || !res.AlreadyTerminal {
		t.Errorf("expected already-terminal completion, got %+v", res)
	}
	if res.Reason != models.ReasonDeadlineExpired {
		t.Errorf("expected the winner's reason, got %q", res.Reason)
	}
}

func TestCheck_NotVoting(t *testing.T) {
	st := testutil.NewSQLStore(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	item, err := st.CreateItem(ctx, models.VotableItem{Type: models.ItemResolution, Title: "Draft"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	d := completion.New(st, zap.NewNop(), nil)
	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Complete {
		t.Error("expected a draft item to be incomplete")
	}
}

func TestCheck_ZeroEligibleNeverAllVoted(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deadline := time.Now().Add(time.Hour)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 0, Deadline: &deadline, MinimumQuorum: 50})

	d := completion.New(st, zap.NewNop(), nil)
	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Complete {
		t.Fatal("expected zero eligible voters not to trigger all_voted")
	}

	d.Now = func() time.Time { return deadline.Add(time.Second) }
	res, err = d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Complete || res.Reason != models.ReasonDeadlineExpired || res.Outcome.Passed {
		t.Errorf("expected failed deadline completion, got %+v", res)
	}
}

func TestCheck_CountsOnlyFrozenVoters(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	board := fx.CreateBoard(ctx, 3)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{
		Voters: testutil.VoterIDs(board), MinimumQuorum: 50, ApprovalThreshold: 50,
	})
	late := fx.CreateUser(ctx, "Late Joiner", models.RoleBoardMember)

	_, err := st.UpsertBallot(ctx, storage.BallotInput{ItemID: item.ID, VoterID: late.ID, Choice: voting.Approve}, time.Now())
	if !errors.Is(err, storage.ErrNotEligible) {
		t.Fatalf("late member: expected ErrNotEligible, got %v", err)
	}

	fx.CastBallot(ctx, item.ID, board[0].ID, voting.Approve, "")
	fx.CastBallot(ctx, item.ID, board[1].ID, voting.Approve, "")

	store := &extraBallotStore{Store: st, extra: []models.Ballot{
		{ItemID: item.ID, VoterID: late.ID, Choice: voting.Approve, CastAt: time.Now()},
	}}
	d := completion.New(store, zap.NewNop(), nil)
	res, err := d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if res.Complete {
		t.Fatalf("a ballot from outside the frozen set must not complete the vote, got %+v", res)
	}

	fx.CastBallot(ctx, item.ID, board[2].ID, voting.Reject, "")
	res, err = d.Check(ctx, item.ID)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !res.Complete || res.Reason != models.ReasonAllVoted {
		t.Fatalf("expected all_voted once every frozen voter voted, got %+v", res)
	}
	if res.Outcome.VotesCast != 3 || res.Outcome.Approve != 2 || res.Outcome.Reject != 1 {
		t.Errorf("outcome must count only frozen voters: %+v", res.Outcome)
	}
}

func TestCheck_Errors(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	d := completion.New(st, zap.NewNop(), nil)
	if _, err := d.Check(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 2})
	d = completion.New(&failingStore{Store: st}, zap.NewNop(), nil)
	res, err := d.Check(ctx, item.ID)
	if !errors.Is(err, errStoreDown) {
		t.Errorf("expected store error to surface, got %v", err)
	}
	if res.Complete {
		t.Error("a store error must not report completion")
	}
}
