// internal/app/features/ballots/handler.go
package ballots

import (
	"context"
	"time"

	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/app/system/metrics"
	"github.com/dalemusser/boardhub/internal/app/system/ratelimit"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"go.uber.org/zap"
)

// Hook runs after a ballot is recorded. It must not block the response.
type Hook interface {
	AfterBallot(ctx context.Context, ref models.ItemRef)
}

// Handler serves ballot casting.
type Handler struct {
	Store   storage.VoteStore
	Hook    Hook
	Limiter ratelimit.Limiter
	ErrLog  *uierrors.ErrorLogger
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// NewHandler creates a ballots Handler. A nil limiter disables rate limiting.
func NewHandler(store storage.VoteStore, hook Hook, limiter ratelimit.Limiter, errLog *uierrors.ErrorLogger, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		Store:   store,
		Hook:    hook,
		Limiter: limiter,
		ErrLog:  errLog,
		Log:     logger,
		Metrics: m,
		Now:     time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}
