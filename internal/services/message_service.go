// MessageService owns the conversation log: appending, listing in canonical
// order, seen markers and the admin's all-conversations snapshot.
//
// Observability: public methods open OpenTelemetry spans tagged with the
// profile id; store errors propagate unchanged.

package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxContentRunes bounds a single message.
const DefaultMaxContentRunes = 2000

// MessageService coordinates message persistence.
type MessageService struct {
	DB *gorm.DB

	// Events receives seen updates; inserts reach the feed through the
	// GORM hook. Optional.
	Events notifier.Publisher

	// Presence feeds online/typing flags into AdminSnapshot. Optional.
	Presence *PresenceService

	// AdminProfileID is excluded from the snapshot; it never owns a
	// conversation.
	AdminProfileID string

	MaxContentRunes int
}

// Append validates and stores a message. The store timestamps it.
func (s *MessageService) Append(ctx context.Context, profileID string, sender domain.Role, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Append",
		trace.WithAttributes(
			attribute.String("profile.id", profileID),
			attribute.String("sender", string(sender)),
		),
	)
	defer span.End()

	const op = "Append"
	content = strings.TrimSpace(content)
	switch {
	case strings.TrimSpace(profileID) == "":
		return nil, validationErr(op, "profile_id is required")
	case !sender.Valid():
		return nil, validationErr(op, "sender must be user or admin")
	case content == "":
		return nil, validationErr(op, "message content is empty")
	}
	if limit := s.maxRunes(); utf8.RuneCountInString(content) > limit {
		return nil, validationErr(op, "message exceeds %d characters", limit)
	}

	if _, err := s.profile(ctx, op, profileID); err != nil {
		return nil, err
	}
	return repo.CreateMessage(ctx, s.DB, profileID, sender, content)
}

// List returns every message of a conversation, ascending by creation time
// unless desc is set.
func (s *MessageService) List(ctx context.Context, profileID string, desc bool) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("profile.id", profileID),
			attribute.Bool("desc", desc),
		),
	)
	defer span.End()

	if strings.TrimSpace(profileID) == "" {
		return nil, validationErr("List", "profile_id is required")
	}
	if _, err := s.profile(ctx, "List", profileID); err != nil {
		return nil, err
	}
	return repo.ListMessages(ctx, s.DB, profileID, desc)
}

// Stats backs the conversation ETag.
func (s *MessageService) Stats(ctx context.Context, profileID string) (repo.ConversationStats, error) {
	return repo.MessagesStats(ctx, s.DB, profileID)
}

// MarkSeen records that seenBy has read ids. Only messages written by the
// other party and not yet seen change; repeating a call is a successful
// no-op. scopeProfileID, when set, confines the update to one conversation
// so users cannot touch others' messages. Returns the number updated.
func (s *MessageService) MarkSeen(ctx context.Context, ids []string, seenBy domain.Role, scopeProfileID string) (int, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "MarkSeen",
		trace.WithAttributes(
			attribute.Int("ids", len(ids)),
			attribute.String("seen_by", string(seenBy)),
		),
	)
	defer span.End()

	const op = "MarkSeen"
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return 0, validationErr(op, "message_ids is required")
	}
	if !seenBy.Valid() {
		return 0, validationErr(op, "seen_by must be user or admin")
	}

	at := time.Now().UTC()
	updated, err := repo.MarkSeen(ctx, s.DB, clean, seenBy, scopeProfileID, at)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("updated", len(updated)))
	if len(updated) > 0 && s.Events != nil {
		s.publishSeen(ctx, updated, seenBy, at)
	}
	return len(updated), nil
}

// publishSeen groups updated ids by conversation so each event is routed to
// the right subscribers.
func (s *MessageService) publishSeen(ctx context.Context, ids []string, seenBy domain.Role, at time.Time) {
	var rows []domain.Message
	if err := s.DB.WithContext(ctx).Select("id", "profile_id").Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return
	}
	byProfile := make(map[string][]string)
	for _, m := range rows {
		byProfile[m.ProfileID] = append(byProfile[m.ProfileID], m.ID)
	}
	for pid, mids := range byProfile {
		s.Events.Publish(notifier.Event{
			Type: notifier.EventSeen,
			At:   at,
			Seen: &notifier.SeenUpdate{ProfileID: pid, MessageIDs: mids, SeenBy: seenBy, SeenAt: at},
		})
	}
}

// AdminSnapshot returns every non-admin profile with its full conversation,
// the admin's unread count and fresh presence flags. Newest profiles first.
func (s *MessageService) AdminSnapshot(ctx context.Context) ([]domain.Conversation, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "AdminSnapshot")
	defer span.End()

	profiles, err := repo.ListProfiles(ctx, s.DB, s.AdminProfileID)
	if err != nil {
		return nil, err
	}
	all, err := repo.ListAllMessages(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	byProfile := make(map[string][]domain.Message, len(profiles))
	for _, m := range all {
		byProfile[m.ProfileID] = append(byProfile[m.ProfileID], m)
	}

	var presence map[string]domain.Presence
	if s.Presence != nil {
		if presence, err = s.Presence.Fresh(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]domain.Conversation, 0, len(profiles))
	for _, p := range profiles {
		msgs := byProfile[p.ID]
		if msgs == nil {
			msgs = []domain.Message{}
		}
		c := domain.Conversation{
			Profile:     p,
			Messages:    msgs,
			UnreadCount: domain.UnreadCount(msgs, domain.RoleAdmin),
		}
		if pr, ok := presence[p.ID]; ok {
			c.IsOnline = true
			c.IsTyping = pr.IsTyping
		}
		out = append(out, c)
	}
	span.SetAttributes(attribute.Int("conversations", len(out)))
	return out, nil
}

func (s *MessageService) profile(ctx context.Context, op, id string) (*domain.Profile, error) {
	p, err := repo.GetProfile(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundErr(op, "profile %s not found", id)
	}
	return p, err
}

func (s *MessageService) maxRunes() int {
	if s.MaxContentRunes > 0 {
		return s.MaxContentRunes
	}
	return DefaultMaxContentRunes
}
