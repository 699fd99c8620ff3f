package health_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/boardhub/internal/app/features/health"
	"github.com/dalemusser/boardhub/internal/app/store/votes"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
)

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type healthBody struct {
	Status   string `json:"status"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
	Error    string `json:"error"`
}

func TestServe_SQLConnected(t *testing.T) {
	st := testutil.NewSQLStore(t)
	handler := health.NewHandler(st, "sqlite", zap.NewNop())

	rec := testutil.NewRecorder()
	handler.Serve(rec, httptest.NewRequest("GET", "/health", nil))

	rec.AssertStatus(t, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want %q", ct, "application/json")
	}
	var body healthBody
	rec.DecodeJSON(t, &body)
	if body.Status != "ok" || body.Database != "connected" || body.Backend != "sqlite" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestServe_MongoConnected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	handler := health.NewHandler(votes.New(db, zap.NewNop()), "mongo", zap.NewNop())

	rec := testutil.NewRecorder()
	handler.Serve(rec, httptest.NewRequest("GET", "/health", nil))

	rec.AssertStatus(t, http.StatusOK)
}

func TestServe_StoreDown(t *testing.T) {
	handler := health.NewHandler(downStore{}, "postgres", zap.NewNop())

	rec := testutil.NewRecorder()
	handler.Serve(rec, httptest.NewRequest("GET", "/health", nil))

	rec.AssertStatus(t, http.StatusServiceUnavailable)
	var body healthBody
	rec.DecodeJSON(t, &body)
	if body.Status != "error" || body.Database != "disconnected" || body.Error == "" {
		t.Errorf("unexpected body: %+v", body)
	}
}
