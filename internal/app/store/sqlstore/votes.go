// internal/app/store/sqlstore/votes.go
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dalemusser/boardhub/internal/app/store/storage"
	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetItem returns the item with the given id.
func (s *Store) GetItem(ctx context.Context, id string) (models.VotableItem, error) {
	var row itemRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.VotableItem{}, storage.ErrNotFound
		}
		return models.VotableItem{}, err
	}
	return row.model(), nil
}

// CreateItem inserts a new item. ID and timestamps are filled when empty.
func (s *Store) CreateItem(ctx context.Context, item models.VotableItem) (models.VotableItem, error) {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.StatusDraft
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	row := itemRowFrom(item)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return models.VotableItem{}, storage.ErrConflict
		}
		return models.VotableItem{}, err
	}
	return row.model(), nil
}

// OpenVoting moves a draft or under-review item into voting and freezes its
// voter set.
func (s *Store) OpenVoting(ctx context.Context, id string, voterIDs []string, deadline *time.Time, now time.Time) (models.VotableItem, error) {
	now = now.UTC()
	voters := storage.UniqueVoterIDs(voterIDs)
	res := s.db.WithContext(ctx).
		Model(&itemRow{}).
		Where("id = ? AND status IN ?", id, []string{string(models.StatusDraft), string(models.StatusUnderReview)}).
		Updates(map[string]any{
			"status":                string(models.StatusVoting),
			"total_eligible_voters": len(voters),
			"eligible_voter_ids":    encodeIDs(voters),
			"voting_deadline":       utcPtr(deadline),
			"episode":               gorm.Expr("episode + 1"),
			"voting_opened_at":      now,
			"updated_at":            now,
		})
	if res.Error != nil {
		return models.VotableItem{}, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetItem(ctx, id); err != nil {
			return models.VotableItem{}, err
		}
		return models.VotableItem{}, storage.ErrConflict
	}
	return s.GetItem(ctx, id)
}

// Ballots returns all ballots for an item ordered by cast time.
func (s *Store) Ballots(ctx context.Context, itemID string) ([]models.Ballot, error) {
	var rows []ballotRow
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("cast_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Ballot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// Ballot returns one voter's ballot on an item.
func (s *Store) Ballot(ctx context.Context, itemID, voterID string) (models.Ballot, error) {
	var row ballotRow
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND voter_id = ?", itemID, voterID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Ballot{}, storage.ErrNotFound
		}
		return models.Ballot{}, err
	}
	return row.model(), nil
}

// UpsertBallot records or replaces a voter's ballot and refreshes the item's
// counters in one transaction.
func (s *Store) UpsertBallot(ctx context.Context, in storage.BallotInput, now time.Time) (models.Ballot, error) {
	now = now.UTC()
	var saved ballotRow

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item itemRow
		if err := tx.First(&item, "id = ?", in.ItemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		if err := storage.ValidateBallot(item.model(), in, now); err != nil {
			return err
		}

		var existing ballotRow
		err := tx.Where("item_id = ? AND voter_id = ?", in.ItemID, in.VoterID).First(&existing).Error
		switch {
		case err == nil:
			if !item.AllowBallotChanges {
				return storage.ErrAlreadyVoted
			}
			existing.Choice = string(in.Choice)
			existing.Comment = in.Comment
			existing.UpdatedAt = now
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			saved = existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			saved = ballotRow{
				ID:        uuid.NewString(),
				ItemID:    in.ItemID,
				VoterID:   in.VoterID,
				ItemType:  item.Type,
				Choice:    string(in.Choice),
				Comment:   in.Comment,
				CastAt:    now,
				UpdatedAt: now,
			}
			if err := tx.Create(&saved).Error; err != nil {
				if isDuplicate(err) {
					return storage.ErrConflict
				}
				return err
			}
		default:
			return err
		}

		return recount(tx, in.ItemID, now)
	})
	if err != nil {
		return models.Ballot{}, err
	}
	return saved.model(), nil
}

// recount rewrites the item's aggregate counters from its ballots.
func recount(tx *gorm.DB, itemID string, now time.Time) error {
	var rows []ballotRow
	if err := tx.Where("item_id = ?", itemID).Find(&rows).Error; err != nil {
		return err
	}
	ballots := make([]models.Ballot, 0, len(rows))
	for _, r := range rows {
		ballots = append(ballots, r.model())
	}

	approve, reject, abstain := storage.Tally(ballots)
	return tx.Model(&itemRow{}).Where("id = ?", itemID).Updates(map[string]any{
		"votes_cast":    approve + reject + abstain,
		"approve_count": approve,
		"reject_count":  reject,
		"abstain_count": abstain,
		"updated_at":    now,
	}).Error
}

// SetTerminalStatus writes the terminal status, reason and outcome only if
// the item is still in expected.
func (s *Store) SetTerminalStatus(ctx context.Context, itemID string, expected models.Status, t storage.Terminal) (int64, error) {
	completed := t.CompletedAt.UTC()
	outcome := t.Outcome
	res := s.db.WithContext(ctx).
		Model(&itemRow{}).
		Where("id = ? AND status = ?", itemID, string(expected)).
		Select("status", "completion_reason", "outcome", "completed_at", "updated_at").
		Updates(&itemRow{
			Status:           string(t.Status),
			CompletionReason: string(t.Reason),
			Outcome:          &outcome,
			CompletedAt:      &completed,
			UpdatedAt:        completed,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ListDueForSweep returns voting items whose deadline is at or before now,
// oldest deadline first.
func (s *Store) ListDueForSweep(ctx context.Context, now time.Time, limit int64) ([]models.VotableItem, error) {
	q := s.db.WithContext(ctx).
		Where("status = ? AND voting_deadline IS NOT NULL AND voting_deadline <= ?", string(models.StatusVoting), now.UTC()).
		Order("voting_deadline asc")
	if limit > 0 {
		q = q.Limit(int(limit))
	}
	var rows []itemRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.VotableItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// ListCompletedSince returns items that reached a terminal voting status at or
// after since, oldest completion first.
func (s *Store) ListCompletedSince(ctx context.Context, since time.Time, limit int64) ([]models.VotableItem, error) {
	terminal := []string{
		string(models.StatusApproved), string(models.StatusRejected),
		string(models.StatusPassed), string(models.StatusFailed),
	}
	q := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at IS NOT NULL AND completed_at >= ?", terminal, since.UTC()).
		Order("completed_at asc")
	if limit > 0 {
		q = q.Limit(int(limit))
	}
	var rows []itemRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.VotableItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// encodeIDs renders ids the way the json serializer stores them. Map updates
// bypass gorm serializers.
func encodeIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
