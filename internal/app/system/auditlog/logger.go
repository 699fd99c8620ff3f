// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"go.uber.org/zap"
)

// Mirror modes for ledger entries.
//   - "all": write to the ledger store and mirror to zap
//   - "db":  write to the ledger store only
//
// The store write cannot be turned off; the ledger is the dedup record.
const (
	ModeAll = "all"
	ModeDB  = "db"
)

// Config holds ledger logging configuration.
type Config struct {
	Mode string
}

// Logger wraps a storage.Ledger and mirrors every appended entry to
// structured logs. It satisfies storage.Ledger itself, so the dispatcher and
// handlers use it in place of the store.
type Logger struct {
	store  storage.Ledger
	zapLog *zap.Logger
	config Config
}

var _ storage.Ledger = (*Logger)(nil)

// New creates a new ledger Logger.
func New(store storage.Ledger, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	if config.Mode == "" {
		config.Mode = ModeAll
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the entry to zap with consistent structure.
func (l *Logger) logToZap(e models.LedgerEntry) {
	fields := []zap.Field{
		zap.Bool("ledger", true),
		zap.String("ledger_id", e.ID),
		zap.String("kind", string(e.Kind)),
		zap.String("item_type", string(e.ItemType)),
		zap.String("item_id", e.ItemID),
		zap.Int("episode", e.Episode),
		zap.String("source", string(e.Source)),
		zap.Int("sent", e.Payload.Sent),
		zap.Int("failed", e.Payload.Failed),
	}
	if e.Forced {
		fields = append(fields, zap.Bool("forced", true))
	}
	if e.ActorID != "" {
		fields = append(fields, zap.String("actor_id", e.ActorID))
	}
	if e.Payload.Reason != "" {
		fields = append(fields, zap.String("reason", string(e.Payload.Reason)))
	}
	if e.Payload.Error != "" {
		fields = append(fields, zap.String("error", e.Payload.Error))
	}

	if e.Kind == models.LedgerFailed {
		l.zapLog.Warn("ledger entry", fields...)
	} else {
		l.zapLog.Info("ledger entry", fields...)
	}
}

// Append writes the entry to the store and, in "all" mode, mirrors it to zap.
func (l *Logger) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	saved, err := l.store.Append(ctx, entry)
	if err != nil {
		l.zapLog.Error("failed to append ledger entry",
			zap.String("kind", string(entry.Kind)),
			zap.String("item_id", entry.ItemID),
			zap.Int("episode", entry.Episode),
			zap.Error(err))
		return models.LedgerEntry{}, err
	}
	if l.config.Mode == ModeAll {
		l.logToZap(saved)
	}
	return saved, nil
}

// FindEntry delegates to the store.
func (l *Logger) FindEntry(ctx context.Context, itemID string, episode int, kind models.LedgerKind) (*models.LedgerEntry, error) {
	return l.store.FindEntry(ctx, itemID, episode, kind)
}

// Recent delegates to the store.
func (l *Logger) Recent(ctx context.Context, filter storage.LedgerFilter) ([]models.LedgerEntry, error) {
	return l.store.Recent(ctx, filter)
}

// Count delegates to the store.
func (l *Logger) Count(ctx context.Context, filter storage.LedgerFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}
