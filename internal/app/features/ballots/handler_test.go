package ballots_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/boardhub/internal/app/features/ballots"
	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/sqlstore"
	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/boardhub/internal/app/system/ratelimit"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
)

type recordingHook struct {
	mu   sync.Mutex
	refs []models.ItemRef
}

func (h *recordingHook) AfterBallot(_ context.Context, ref models.ItemRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs = append(h.refs, ref)
}

func newHandler(t *testing.T, st *sqlstore.Store, limiter ratelimit.Limiter) (*ballots.Handler, *recordingHook) {
	t.Helper()
	hook := &recordingHook{}
	logger := zap.NewNop()
	return ballots.NewHandler(st, hook, limiter, uierrors.NewErrorLogger(logger), logger, nil), hook
}

func castRequest(t *testing.T, u models.User, item models.VotableItem, body any) *http.Request {
	t.Helper()
	req := testutil.NewJSONRequest(t, "POST", "/items/"+string(item.Type)+"/"+item.ID+"/ballot", body)
	req = testutil.WithChiURLParams(req, "itemType", string(item.Type), "itemID", item.ID)
	return testutil.WithUser(req, u)
}

func TestServeCast_RecordsBallotAndRunsHook(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3})
	h, hook := newHandler(t, st, nil)

	rec := testutil.NewRecorder()
	h.ServeCast(rec, castRequest(t, voter, item, map[string]string{
		"choice":  "Approve",
		"comment": "<b>Strongly</b> support",
	}))
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Success bool `json:"success"`
		Ballot  struct {
			Choice  string `json:"choice"`
			Comment string `json:"comment"`
		} `json:"ballot"`
	}
	rec.DecodeJSON(t, &resp)
	if !resp.Success || resp.Ballot.Choice != "approve" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Ballot.Comment != "Strongly support" {
		t.Errorf("expected sanitized comment, got %q", resp.Ballot.Comment)
	}

	b, err := st.Ballot(ctx, item.ID, voter.ID)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	if b.Choice != voting.Approve {
		t.Errorf("stored choice: got %q", b.Choice)
	}
	if len(hook.refs) != 1 || hook.refs[0] != item.Ref() {
		t.Errorf("expected the post-ballot hook once for the item, got %+v", hook.refs)
	}
}

func TestServeCast_LegacyChoiceSpelling(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleAdmin)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Type: models.ItemMinutes, Eligible: 3})
	h, _ := newHandler(t, st, nil)

	rec := testutil.NewRecorder()
	h.ServeCast(rec, castRequest(t, voter, item, map[string]string{"choice": "against"}))
	rec.AssertStatus(t, http.StatusOK)

	b, err := st.Ballot(ctx, item.ID, voter.ID)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	if b.Choice != voting.Reject {
		t.Errorf("expected legacy 'against' to map to reject, got %q", b.Choice)
	}
}

func TestServeCast_Rejections(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	staff := fx.CreateUser(ctx, "Stan Staff", "staff")
	open := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3})
	voted := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3})
	fx.CastBallot(ctx, voted.ID, voter.ID, voting.Approve, "")
	draft, err := st.CreateItem(ctx, models.VotableItem{Type: models.ItemResolution, Title: "Draft"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	tests := []struct {
		name   string
		user   models.User
		item   models.VotableItem
		body   any
		status int
	}{
		{name: "invalid choice", user: voter, item: open, body: map[string]string{"choice": "maybe"}, status: http.StatusBadRequest},
		{name: "comment too long", user: voter, item: open, body: map[string]string{"choice": "approve", "comment": strings.Repeat("x", models.MaxCommentLength+1)}, status: http.StatusBadRequest},
		{name: "not a voter", user: staff, item: open, body: map[string]string{"choice": "approve"}, status: http.StatusForbidden},
		{name: "already voted", user: voter, item: voted, body: map[string]string{"choice": "reject"}, status: http.StatusConflict},
		{name: "voting not open", user: voter, item: draft, body: map[string]string{"choice": "approve"}, status: http.StatusConflict},
		{name: "wrong item type", user: voter, item: models.VotableItem{ID: open.ID, Type: models.ItemMinutes}, body: map[string]string{"choice": "approve"}, status: http.StatusNotFound},
		{name: "missing item", user: voter, item: models.VotableItem{ID: "missing", Type: models.ItemResolution}, body: map[string]string{"choice": "approve"}, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, hook := newHandler(t, st, nil)
			rec := testutil.NewRecorder()
			h.ServeCast(rec, castRequest(t, tt.user, tt.item, tt.body))
			rec.AssertStatus(t, tt.status)
			if len(hook.refs) != 0 {
				t.Error("rejected ballots must not run the hook")
			}
		})
	}
}

func TestServeCast_DeadlinePassed(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	deadline := time.Now().Add(time.Hour)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3, Deadline: &deadline})

	h, _ := newHandler(t, st, nil)
	h.Now = func() time.Time { return deadline }

	rec := testutil.NewRecorder()
	h.ServeCast(rec, castRequest(t, voter, item, map[string]string{"choice": "approve"}))
	rec.AssertStatus(t, http.StatusConflict)
	rec.AssertContains(t, "deadline")
}

func TestServeCast_NotInFrozenVoterSet(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	board := fx.CreateBoard(ctx, 2)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Voters: testutil.VoterIDs(board)})
	late := fx.CreateUser(ctx, "Late Joiner", models.RoleBoardMember)

	h, hook := newHandler(t, st, nil)
	rec := testutil.NewRecorder()
	h.ServeCast(rec, castRequest(t, late, item, map[string]string{"choice": "approve"}))
	rec.AssertStatus(t, http.StatusForbidden)
	rec.AssertContains(t, "not an eligible voter")
	if len(hook.refs) != 0 {
		t.Error("a refused ballot must not run the completion hook")
	}

	rec = testutil.NewRecorder()
	h.ServeCast(rec, castRequest(t, board[0], item, map[string]string{"choice": "approve"}))
	rec.AssertStatus(t, http.StatusOK)
}

func TestServeCast_RateLimited(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3, AllowBallotChanges: true})
	h, _ := newHandler(t, st, ratelimit.NewMemory(2, time.Minute))

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		rec := testutil.NewRecorder()
		h.ServeCast(rec, castRequest(t, voter, item, map[string]string{"choice": "abstain"}))
		if rec.Code != want {
			t.Fatalf("attempt %d: got %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestServeCast_BadJSON(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3})
	h, _ := newHandler(t, st, nil)

	req := castRequest(t, voter, item, nil)
	req.Body = http.NoBody
	rec := testutil.NewRecorder()
	h.ServeCast(rec, req)
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestServeMine(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	other := fx.CreateUser(ctx, "Otto Other", models.RoleBoardMember)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3})
	fx.CastBallot(ctx, item.ID, voter.ID, voting.Reject, "Not yet")
	h, _ := newHandler(t, st, nil)

	req := testutil.NewJSONRequest(t, "GET", "/items/resolution/"+item.ID+"/ballot", nil)
	req = testutil.WithChiURLParams(req, "itemType", "resolution", "itemID", item.ID)

	rec := testutil.NewRecorder()
	h.ServeMine(rec, testutil.WithUser(req, voter))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"choice":"reject"`)
	rec.AssertContains(t, "Not yet")

	rec = testutil.NewRecorder()
	h.ServeMine(rec, testutil.WithUser(req, other))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestRoutes_RequireVoterRole(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sm, err := auth.NewSessionManager("test-session-key-for-testing-only-0123", "test-session", "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}
	voter := fx.CreateUser(ctx, "Vera Voter", models.RoleBoardMember)
	staff := fx.CreateUser(ctx, "Stan Staff", "staff")
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 3})
	h, _ := newHandler(t, st, nil)
	router := ballots.Routes(h, sm)

	path := "/resolution/" + item.ID + "/ballot"
	body := map[string]string{"choice": "approve"}

	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewJSONRequest(t, "POST", path, body))
	rec.AssertStatus(t, http.StatusUnauthorized)

	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.WithUser(testutil.NewJSONRequest(t, "POST", path, body), staff))
	rec.AssertStatus(t, http.StatusForbidden)

	rec = testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.WithUser(testutil.NewJSONRequest(t, "POST", path, body), voter))
	rec.AssertStatus(t, http.StatusOK)
}
