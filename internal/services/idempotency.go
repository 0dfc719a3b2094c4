package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/repo"
)

// DefaultIdempotencyTTL is how long a key replays its first result.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyService remembers which message an Idempotency-Key produced,
// per writing profile.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Exists reports whether a live record exists for (profileID, key).
func (s *IdempotencyService) Exists(ctx context.Context, profileID, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.DB, profileID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Replay returns the stored message for (profileID, key), or nil when the
// key is unknown, expired or its message is gone.
func (s *IdempotencyService) Replay(ctx context.Context, profileID, key string) (*domain.Message, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, profileID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// Remember records messageID under key. Losing a race to a concurrent retry
// is not an error: the first writer's record stands.
func (s *IdempotencyService) Remember(ctx context.Context, profileID, key, messageID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, profileID, key, messageID, status, s.ttl())
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Run purges expired records every interval until ctx ends.
func (s *IdempotencyService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, s.DB, now)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired idempotency keys purged")
			}
		}
	}
}

func (s *IdempotencyService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultIdempotencyTTL
}
