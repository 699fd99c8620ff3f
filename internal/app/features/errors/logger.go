// internal/app/features/errors/logger.go
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/authz"
	"github.com/dalemusser/boardhub/internal/domain/voting"
	"go.uber.org/zap"
)

// ErrorLogger logs handler failures and writes the JSON error body.
type ErrorLogger struct {
	Log *zap.Logger
}

// NewErrorLogger creates an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLogger{Log: logger}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg} with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorBody{Error: msg})
}

// LogServerError logs err at error level and responds 500 with userMsg.
func (l *ErrorLogger) LogServerError(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	l.Log.Error(msg, append(requestFields(r), zap.Error(err))...)
	WriteError(w, http.StatusInternalServerError, userMsg)
}

// LogBadRequest logs err at info level and responds 400 with userMsg.
func (l *ErrorLogger) LogBadRequest(w http.ResponseWriter, r *http.Request, msg string, err error, userMsg string) {
	l.Log.Info(msg, append(requestFields(r), zap.Error(err))...)
	WriteError(w, http.StatusBadRequest, userMsg)
}

// Respond maps a pipeline or store error to its HTTP status. Unknown errors
// are logged as server errors.
func (l *ErrorLogger) Respond(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, userMsg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		l.LogServerError(w, r, msg, err, userMsg)
		return
	}
	l.Log.Debug(msg, append(requestFields(r), zap.Int("status", status), zap.Error(err))...)
	WriteError(w, status, userMsg)
}

// StatusFor returns the HTTP status and client message for err.
func StatusFor(err error) (int, string) {
	switch {
	case stderrors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "item not found"
	case stderrors.Is(err, storage.ErrVotingClosed):
		return http.StatusConflict, "voting is closed for this item"
	case stderrors.Is(err, storage.ErrDeadlinePassed):
		return http.StatusConflict, "the voting deadline has passed"
	case stderrors.Is(err, storage.ErrAlreadyVoted):
		return http.StatusConflict, "you have already voted on this item"
	case stderrors.Is(err, storage.ErrNotEligible):
		return http.StatusForbidden, "you are not an eligible voter for this item"
	case stderrors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "the item changed state; try again"
	case stderrors.Is(err, voting.ErrInvalidChoice):
		return http.StatusBadRequest, "choice must be approve, reject or abstain"
	}
	return http.StatusInternalServerError, "internal error"
}

func requestFields(r *http.Request) []zap.Field {
	_, _, userID, _ := authz.UserCtx(r)
	return []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("user_id", userID),
	}
}
