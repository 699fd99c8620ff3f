// internal/app/store/sqlstore/ledger.go
package sqlstore

import (
	"context"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FindEntry returns the newest entry of kind for the item episode, or nil.
func (s *Store) FindEntry(ctx context.Context, itemID string, episode int, kind models.LedgerKind) (*models.LedgerEntry, error) {
	var rows []ledgerRow
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND episode = ? AND kind = ?", itemID, episode, string(kind)).
		Order("created_at desc").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	e := rows[0].model()
	return &e, nil
}

// Append inserts a ledger entry. ID and CreatedAt are filled when empty.
func (s *Store) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	row := ledgerRow{
		ID:        entry.ID,
		Kind:      string(entry.Kind),
		ItemType:  string(entry.ItemType),
		ItemID:    entry.ItemID,
		Episode:   entry.Episode,
		Source:    string(entry.Source),
		Forced:    entry.Forced,
		ActorID:   entry.ActorID,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.LedgerEntry{}, err
	}
	return row.model(), nil
}

// Recent returns entries matching filter, newest first.
func (s *Store) Recent(ctx context.Context, filter storage.LedgerFilter) ([]models.LedgerEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = storage.DefaultLedgerLimit
	}
	var rows []ledgerRow
	err := applyLedgerFilter(s.db.WithContext(ctx), filter).
		Order("created_at desc").
		Limit(int(limit)).
		Offset(int(filter.Offset)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// Count returns the number of entries matching filter.
func (s *Store) Count(ctx context.Context, filter storage.LedgerFilter) (int64, error) {
	var n int64
	err := applyLedgerFilter(s.db.WithContext(ctx).Model(&ledgerRow{}), filter).Count(&n).Error
	return n, err
}

func applyLedgerFilter(q *gorm.DB, filter storage.LedgerFilter) *gorm.DB {
	if filter.ItemType != "" {
		q = q.Where("item_type = ?", string(filter.ItemType))
	}
	if filter.ItemID != "" {
		q = q.Where("item_id = ?", filter.ItemID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", string(filter.Kind))
	}
	if filter.Source != "" {
		q = q.Where("source = ?", string(filter.Source))
	}
	if filter.StartTime != nil {
		q = q.Where("created_at >= ?", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		q = q.Where("created_at <= ?", filter.EndTime.UTC())
	}
	return q
}
