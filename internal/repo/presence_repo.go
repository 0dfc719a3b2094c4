package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// UpsertPresence replaces the presence row of p.ProfileID under
// last-writer-wins by LastSeen: an update older than the stored row is
// discarded by the database and applied comes back false.
func UpsertPresence(ctx context.Context, db *gorm.DB, p *domain.Presence) (applied bool, err error) {
	res := db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_online", "is_typing", "typing_for", "last_seen", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Expr{SQL: "presence.last_seen <= excluded.last_seen"},
			}},
		}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetPresence returns the stored row for a profile.
func GetPresence(ctx context.Context, db *gorm.DB, profileID string) (*domain.Presence, error) {
	var p domain.Presence
	if err := db.WithContext(ctx).Where("profile_id = ?", profileID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPresenceSince returns rows flagged online and seen at or after since.
// Callers still apply Presence.IsFresh; this only narrows the scan.
func ListPresenceSince(ctx context.Context, db *gorm.DB, since time.Time) ([]domain.Presence, error) {
	var out []domain.Presence
	err := db.WithContext(ctx).
		Where("is_online = ? AND last_seen >= ?", true, since.UTC()).
		Order("profile_id ASC").
		Find(&out).Error
	return out, err
}
