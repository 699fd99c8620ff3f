package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"github.com/dalemusser/boardhub/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load item: %w", storage.ErrNotFound), http.StatusNotFound},
		{storage.ErrVotingClosed, http.StatusConflict},
		{storage.ErrDeadlinePassed, http.StatusConflict},
		{storage.ErrAlreadyVoted, http.StatusConflict},
		{storage.ErrNotEligible, http.StatusForbidden},
		{storage.ErrConflict, http.StatusConflict},
		{voting.ErrInvalidChoice, http.StatusBadRequest},
		{stderrors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got, _ := uierrors.StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRespond_LogsServerErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	el := uierrors.NewErrorLogger(zap.New(core))

	rec := testutil.NewRecorder()
	req := httptest.NewRequest("POST", "/api/completion", nil)
	el.Respond(rec, req, "completion failed", stderrors.New("connection reset"))

	rec.AssertStatus(t, http.StatusInternalServerError)
	rec.AssertContains(t, `"error":"internal error"`)
	if logs.FilterMessage("completion failed").FilterLevelExact(zap.ErrorLevel).Len() != 1 {
		t.Error("expected one error-level log entry")
	}
}

func TestRespond_ClientErrorsAreNotErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	el := uierrors.NewErrorLogger(zap.New(core))

	rec := testutil.NewRecorder()
	req := httptest.NewRequest("POST", "/items/resolution/x/ballot", nil)
	el.Respond(rec, req, "ballot rejected", storage.ErrAlreadyVoted)

	rec.AssertStatus(t, http.StatusConflict)
	if logs.FilterLevelExact(zap.ErrorLevel).Len() != 0 {
		t.Error("client errors must not log at error level")
	}
}

func TestLogBadRequest(t *testing.T) {
	el := uierrors.NewErrorLogger(zap.NewNop())
	rec := testutil.NewRecorder()
	req := httptest.NewRequest("POST", "/x", nil)
	el.LogBadRequest(rec, req, "decode failed", stderrors.New("EOF"), "invalid JSON body")

	rec.AssertStatus(t, http.StatusBadRequest)
	var body struct {
		Error string `json:"error"`
	}
	rec.DecodeJSON(t, &body)
	if body.Error != "invalid JSON body" {
		t.Errorf("error message: got %q", body.Error)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
}
