// internal/app/features/ledger/handler.go
package ledger

import (
	uierrors "github.com/dalemusser/boardhub/internal/app/features/errors"
	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"go.uber.org/zap"
)

type Handler struct {
	Ledger storage.Ledger
	Roster storage.Roster
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler constructs a completion ledger feature handler bound to
// the given ledger, roster and logger.
func NewHandler(ledger storage.Ledger, roster storage.Roster, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Ledger: ledger,
		Roster: roster,
		Log:    logger,
		ErrLog: errLog,
	}
}
