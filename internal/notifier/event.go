// Package notifier delivers store changes to interested parties. One
// contract, ChangeNotifier, has three implementations:
//
//   - Feed: in-process change feed fed by GORM callbacks (push, at-least-once).
//   - Relay: per-client framed event channels multiplexed over a Feed, with
//     heartbeats and slow-consumer isolation (served as NDJSON, SSE or WebSocket).
//   - Poller: periodic full snapshots turned into events (pull).
//
// Consumers must tolerate duplicates and re-sort by creation time; the
// reducer package does both.
package notifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// EventType names a frame on the wire.
type EventType string

const (
	EventConnected  EventType = "connected"
	EventSubscribed EventType = "subscribed"
	EventMessage    EventType = "message"
	EventPresence   EventType = "presence"
	EventSeen       EventType = "seen"
	EventHeartbeat  EventType = "heartbeat"
	EventError      EventType = "error"
)

// SeenUpdate carries the ids a markSeen call actually changed.
type SeenUpdate struct {
	ProfileID  string      `json:"profile_id"`
	MessageIDs []string    `json:"message_ids"`
	SeenBy     domain.Role `json:"seen_by"`
	SeenAt     time.Time   `json:"seen_at"`
}

// Event is a single change or control frame.
type Event struct {
	Type     EventType        `json:"type"`
	At       time.Time        `json:"at"`
	Message  *domain.Message  `json:"message,omitempty"`
	Presence *domain.Presence `json:"presence,omitempty"`
	Seen     *SeenUpdate      `json:"seen,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// IsControl reports whether e is a per-channel frame rather than a change.
func (e Event) IsControl() bool {
	switch e.Type {
	case EventConnected, EventSubscribed, EventHeartbeat, EventError:
		return true
	}
	return false
}

// ProfileID returns the conversation a change belongs to.
func (e Event) ProfileID() string {
	switch {
	case e.Message != nil:
		return e.Message.ProfileID
	case e.Seen != nil:
		return e.Seen.ProfileID
	case e.Presence != nil:
		return e.Presence.ProfileID
	}
	return ""
}

// ErrMalformedEvent wraps every decode-boundary rejection.
var ErrMalformedEvent = errors.New("malformed event")

// Validate checks that the payload required by the event type is present
// and well-formed.
func (e Event) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrMalformedEvent, fmt.Sprintf(format, args...))
	}
	switch e.Type {
	case EventConnected, EventSubscribed, EventHeartbeat:
		return nil
	case EventError:
		if e.Error == "" {
			return bad("error frame without reason")
		}
		return nil
	case EventMessage:
		m := e.Message
		if m == nil {
			return bad("message frame without message")
		}
		if m.ID == "" || m.ProfileID == "" {
			return bad("message missing id or profile_id")
		}
		if !m.Sender.Valid() {
			return bad("message sender %q", m.Sender)
		}
		if m.CreatedAt.IsZero() {
			return bad("message %s without created_at", m.ID)
		}
		return nil
	case EventPresence:
		if e.Presence == nil || e.Presence.ProfileID == "" {
			return bad("presence frame without profile_id")
		}
		return nil
	case EventSeen:
		s := e.Seen
		if s == nil || len(s.MessageIDs) == 0 {
			return bad("seen frame without message ids")
		}
		if !s.SeenBy.Valid() {
			return bad("seen_by %q", s.SeenBy)
		}
		return nil
	default:
		return bad("unknown type %q", e.Type)
	}
}

// DecodeEvent parses and validates one frame. It fails closed: anything that
// does not validate is rejected rather than partially applied.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Subject identifies who is listening. The admin sees every conversation;
// a user sees its own conversation plus the admin's presence.
type Subject struct {
	ProfileID      string
	Admin          bool
	AdminProfileID string
}

// Matches reports whether ev is visible to s.
func (s Subject) Matches(ev Event) bool {
	if ev.IsControl() || s.Admin {
		return true
	}
	if ev.Presence != nil {
		p := ev.Presence
		if p.ProfileID == s.ProfileID || (s.AdminProfileID != "" && p.ProfileID == s.AdminProfileID) {
			return true
		}
		return p.TypingFor != nil && *p.TypingFor == s.ProfileID
	}
	return ev.ProfileID() != "" && ev.ProfileID() == s.ProfileID
}
