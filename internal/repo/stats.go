package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// ConversationStats summarizes one conversation for conditional responses.
// Any append or seen update changes at least one field.
type ConversationStats struct {
	Count      int64
	Seen       int64
	LatestAt   *time.Time
	LatestSeen *time.Time
}

// MessagesStats computes ConversationStats for profileID. An empty
// conversation yields zero counts and nil timestamps.
func MessagesStats(ctx context.Context, db *gorm.DB, profileID string) (ConversationStats, error) {
	var st ConversationStats
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Message{}).Where("profile_id = ?", profileID)
	}

	if err := base().Count(&st.Count).Error; err != nil {
		return ConversationStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}
	if err := base().Where("seen_at IS NOT NULL").Count(&st.Seen).Error; err != nil {
		return ConversationStats{}, err
	}

	// Latest rows via ORDER BY (avoid MAX() -> TEXT in SQLite).
	var row struct {
		CreatedAt time.Time
	}
	if err := base().Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return ConversationStats{}, err
	}
	st.LatestAt = &row.CreatedAt

	if st.Seen > 0 {
		var seen struct {
			SeenAt time.Time
		}
		if err := base().Select("seen_at").Where("seen_at IS NOT NULL").Order("seen_at DESC").Limit(1).Scan(&seen).Error; err != nil {
			return ConversationStats{}, err
		}
		st.LatestSeen = &seen.SeenAt
	}
	return st, nil
}
