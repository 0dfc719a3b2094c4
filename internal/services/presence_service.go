package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFreshness is the presence window when none is configured.
const DefaultFreshness = 15 * time.Second

// PresenceService applies the freshness policy on top of the presence rows.
type PresenceService struct {
	DB        *gorm.DB
	Freshness time.Duration
	Now       func() time.Time
}

// PresenceUpdate is the full desired state of one profile. Every call
// replaces the previous row; partial updates are not merged.
type PresenceUpdate struct {
	ProfileID string
	IsOnline  bool
	IsTyping  bool
	TypingFor string
	At        time.Time // defaults to now; future values are clamped to now
}

// Upsert writes u under last-writer-wins by At. A stale update returns
// applied=false and no error.
func (s *PresenceService) Upsert(ctx context.Context, u PresenceUpdate) (bool, error) {
	tr := otel.Tracer("services/PresenceService")
	ctx, span := tr.Start(ctx, "Upsert",
		trace.WithAttributes(
			attribute.String("profile.id", u.ProfileID),
			attribute.Bool("online", u.IsOnline),
			attribute.Bool("typing", u.IsTyping),
		),
	)
	defer span.End()

	const op = "Upsert"
	if strings.TrimSpace(u.ProfileID) == "" {
		return false, validationErr(op, "profile_id is required")
	}
	if _, err := repo.GetProfile(ctx, s.DB, u.ProfileID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, notFoundErr(op, "profile %s not found", u.ProfileID)
		}
		return false, err
	}

	now := s.now()
	at := u.At.UTC()
	if u.At.IsZero() || at.After(now) {
		at = now
	}
	row := &domain.Presence{
		ProfileID: u.ProfileID,
		IsOnline:  u.IsOnline,
		IsTyping:  u.IsOnline && u.IsTyping,
		LastSeen:  at,
	}
	if row.IsTyping && strings.TrimSpace(u.TypingFor) != "" {
		target := strings.TrimSpace(u.TypingFor)
		row.TypingFor = &target
	}

	applied, err := repo.UpsertPresence(ctx, s.DB, row)
	span.SetAttributes(attribute.Bool("applied", applied))
	return applied, err
}

// IsOnline reports whether profileID is online and fresh. A missing row is
// offline.
func (s *PresenceService) IsOnline(ctx context.Context, profileID string) (bool, error) {
	p, err := repo.GetPresence(ctx, s.DB, profileID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsFresh(s.now(), s.window()), nil
}

// ListOnline returns the sorted ids of every fresh online profile.
func (s *PresenceService) ListOnline(ctx context.Context) ([]string, error) {
	fresh, err := s.Fresh(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(fresh))
	for id := range fresh {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Fresh returns the rows that pass the freshness policy, keyed by profile.
// The SQL filter narrows the scan; IsFresh is still the deciding rule.
func (s *PresenceService) Fresh(ctx context.Context) (map[string]domain.Presence, error) {
	now := s.now()
	rows, err := repo.ListPresenceSince(ctx, s.DB, now.Add(-s.window()))
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Presence, len(rows))
	for _, p := range rows {
		if p.IsFresh(now, s.window()) {
			out[p.ProfileID] = p
		}
	}
	return out, nil
}

// Typing lists profiles freshly typing toward target. A row with no typing
// target counts as typing toward anyone.
func (s *PresenceService) Typing(ctx context.Context, target string) ([]string, error) {
	fresh, err := s.Fresh(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for id, p := range fresh {
		if id == target || !p.IsTyping {
			continue
		}
		if p.TypingFor == nil || *p.TypingFor == target {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *PresenceService) window() time.Duration {
	if s.Freshness > 0 {
		return s.Freshness
	}
	return DefaultFreshness
}

func (s *PresenceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
