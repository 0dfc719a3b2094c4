package client

import (
	"context"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
)

// NewPoller builds the pull strategy on top of the snapshot endpoints.
func NewPoller(c *Client, interval time.Duration) *notifier.Poller {
	return notifier.NewPoller(c.Snapshot, interval)
}

// Snapshot fetches everything visible to subject. The admin reads the
// conversation overview; a user reads its own conversation plus presence.
// Presence rows are synthesized with the fetch time as LastSeen, so a
// profile that drops out of the online list is reported offline.
func (c *Client) Snapshot(ctx context.Context, subject notifier.Subject) (notifier.Snapshot, error) {
	now := time.Now().UTC()
	if subject.Admin {
		convs, err := c.AdminConversations(ctx)
		if err != nil {
			return notifier.Snapshot{}, err
		}
		var snap notifier.Snapshot
		for _, cv := range convs.Conversations {
			snap.Messages = append(snap.Messages, cv.Messages...)
			p := domain.Presence{ProfileID: cv.Profile.ID, IsOnline: cv.IsOnline, IsTyping: cv.IsTyping, LastSeen: now}
			if cv.IsTyping {
				p.TypingFor = &subject.ProfileID
			}
			snap.Presence = append(snap.Presence, p)
		}
		return snap, nil
	}

	conv, err := c.Messages(ctx, "", false)
	if err != nil {
		return notifier.Snapshot{}, err
	}
	snap := notifier.Snapshot{Messages: conv.Messages}
	if subject.AdminProfileID == "" {
		return snap, nil
	}
	pl, err := c.Presence(ctx)
	if err != nil {
		return notifier.Snapshot{}, err
	}
	admin := domain.Presence{ProfileID: subject.AdminProfileID, LastSeen: now}
	admin.IsOnline = contains(pl.Online, subject.AdminProfileID)
	if contains(pl.Typing, subject.AdminProfileID) {
		admin.IsTyping = true
		admin.TypingFor = &subject.ProfileID
	}
	snap.Presence = append(snap.Presence, admin)
	return snap, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
