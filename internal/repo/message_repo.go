package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// CreateMessage appends a message. CreatedAt comes from StoreClock, never
// from the caller.
func CreateMessage(ctx context.Context, db *gorm.DB, profileID string, sender domain.Role, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Sender:    sender,
		Content:   content,
		CreatedAt: StoreClock.Next(),
	}
	return m, db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns one conversation ordered deterministically by
// (created_at, id), ascending unless desc is set.
func ListMessages(ctx context.Context, db *gorm.DB, profileID string, desc bool) ([]domain.Message, error) {
	order := "created_at ASC, id ASC"
	if desc {
		order = "created_at DESC, id DESC"
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order(order).
		Find(&out).Error
	return out, err
}

// ListAllMessages returns every message grouped by profile, each group in
// ascending creation order. It backs the admin snapshot.
func ListAllMessages(ctx context.Context, db *gorm.DB) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Order("profile_id ASC, created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkSeen stamps the seen marker on the given messages and returns the ids
// that actually changed. Only messages written by the counterpart of seenBy
// and not yet seen are eligible; a non-empty profileID further scopes the
// update to one conversation.
func MarkSeen(ctx context.Context, db *gorm.DB, ids []string, seenBy domain.Role, profileID string, at time.Time) ([]string, error) {
	var updated []string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&domain.Message{}).
			Where("id IN ? AND seen_at IS NULL AND sender = ?", ids, seenBy.Counterpart())
		if profileID != "" {
			q = q.Where("profile_id = ?", profileID)
		}
		if err := q.Pluck("id", &updated).Error; err != nil {
			return err
		}
		if len(updated) == 0 {
			return nil
		}
		return tx.Model(&domain.Message{}).
			Where("id IN ? AND seen_at IS NULL", updated).
			Updates(map[string]any{"seen_at": at.UTC(), "seen_by": string(seenBy)}).Error
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
