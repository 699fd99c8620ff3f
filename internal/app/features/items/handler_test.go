package items_test

import (
	"net/http"
	"testing"
	"time"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/features/items"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
)

func openRequest(t *testing.T, admin models.User, itemType models.ItemType, itemID string, body any) *http.Request {
	t.Helper()
	req := testutil.NewJSONRequest(t, "POST", "/admin/items/"+string(itemType)+"/"+itemID+"/open", body)
	req = testutil.WithChiURLParams(req, "itemType", string(itemType), "itemID", itemID)
	return testutil.WithUser(req, admin)
}

func TestServeOpen_FreezesRoster(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fx.CreateUser(ctx, "Ada Admin", models.RoleAdmin)
	fx.CreateBoard(ctx, 4)
	fx.CreateUser(ctx, "Sam Staff", "staff")
	item, err := st.CreateItem(ctx, models.VotableItem{Type: models.ItemResolution, Title: "Budget"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}

	h := items.NewHandler(st, st, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())
	deadline := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)

	rec := testutil.NewRecorder()
	h.ServeOpen(rec, openRequest(t, admin, item.Type, item.ID, map[string]any{"deadline": deadline}))
	rec.AssertStatus(t, http.StatusOK)

	var resp struct {
		Item models.VotableItem `json:"item"`
	}
	rec.DecodeJSON(t, &resp)
	if resp.Item.Status != models.StatusVoting {
		t.Errorf("status: got %q, want voting", resp.Item.Status)
	}
	if resp.Item.TotalEligibleVoters != 5 {
		t.Errorf("eligible: got %d, want 5 (admin + 4 members)", resp.Item.TotalEligibleVoters)
	}
	if resp.Item.VotingDeadline == nil || !resp.Item.VotingDeadline.Equal(deadline) {
		t.Errorf("deadline: got %v, want %v", resp.Item.VotingDeadline, deadline)
	}

	if len(resp.Item.EligibleVoterIDs) != 5 || !resp.Item.CanVote(admin.ID) {
		t.Errorf("voter set: got %v, want admin + 4 members", resp.Item.EligibleVoterIDs)
	}

	// Roster changes after opening do not move the denominator.
	late := fx.CreateUser(ctx, "Late Joiner", models.RoleBoardMember)
	got, err := st.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.TotalEligibleVoters != 5 {
		t.Errorf("eligible count changed after opening: %d", got.TotalEligibleVoters)
	}
	if got.CanVote(late.ID) {
		t.Error("a member added after opening must not join the voter set")
	}

	rec = testutil.NewRecorder()
	h.ServeOpen(rec, openRequest(t, admin, item.Type, item.ID, nil))
	rec.AssertStatus(t, http.StatusConflict)
}

func TestServeOpen_Validation(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fx.CreateUser(ctx, "Ada Admin", models.RoleAdmin)
	item, err := st.CreateItem(ctx, models.VotableItem{Type: models.ItemMinutes, Title: "March"})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	h := items.NewHandler(st, st, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())

	tests := []struct {
		name     string
		itemType models.ItemType
		itemID   string
		body     any
		status   int
	}{
		{name: "past deadline", itemType: models.ItemMinutes, itemID: item.ID, body: map[string]any{"deadline": time.Now().Add(-time.Hour)}, status: http.StatusBadRequest},
		{name: "wrong type", itemType: models.ItemResolution, itemID: item.ID, status: http.StatusNotFound},
		{name: "unknown type", itemType: "agenda", itemID: item.ID, status: http.StatusNotFound},
		{name: "missing", itemType: models.ItemMinutes, itemID: "missing", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			h.ServeOpen(rec, openRequest(t, admin, tt.itemType, tt.itemID, tt.body))
			rec.AssertStatus(t, tt.status)
		})
	}
}

func TestServeShow(t *testing.T) {
	st := testutil.NewSQLStore(t)
	fx := testutil.NewFixtures(t, st)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin := fx.CreateUser(ctx, "Ada Admin", models.RoleAdmin)
	item := fx.CreateVotingItem(ctx, testutil.ItemOptions{Eligible: 2})
	h := items.NewHandler(st, st, uierrors.NewErrorLogger(zap.NewNop()), zap.NewNop())

	req := testutil.NewJSONRequest(t, "GET", "/admin/items/resolution/"+item.ID, nil)
	req = testutil.WithUser(testutil.WithChiURLParams(req, "itemType", "resolution", "itemID", item.ID), admin)
	rec := testutil.NewRecorder()
	h.ServeShow(rec, req)

	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"status":"voting"`)
}
