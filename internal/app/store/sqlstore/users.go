// internal/app/store/sqlstore/users.go
package sqlstore

import (
	"context"
	"time"

	"github.com/dalemusser/boardhub/internal/domain/models"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// EligibleVoters returns active admins and board members ordered by name.
func (s *Store) EligibleVoters(ctx context.Context, _ models.ItemType) ([]models.User, error) {
	var rows []userRow
	err := s.db.WithContext(ctx).
		Where("role IN ? AND status = ?", []string{models.RoleAdmin, models.RoleBoardMember}, models.UserStatusActive).
		Order("full_name asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return userModels(rows), nil
}

// UsersByIDs returns the users with the given ids. Unknown ids are skipped.
func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []userRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return userModels(rows), nil
}

// SaveUser inserts or replaces a user record. Profiles are owned by the
// identity service; this keeps the local roster in sync with it.
func (s *Store) SaveUser(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	row := userRow{
		ID:        u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "email", "role", "status", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return models.User{}, err
	}
	return row.model(), nil
}

func userModels(rows []userRow) []models.User {
	out := make([]models.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}
