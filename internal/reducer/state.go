// Package reducer merges inbound change events into a client's local view:
// one ordered, duplicate-free message sequence per conversation plus the
// presence rows needed for online badges. It is transport agnostic; the
// same State is fed by streams, websockets or polling.
package reducer

import (
	"sort"
	"sync"
	"time"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
)

// State is safe for concurrent use.
type State struct {
	viewer    domain.Role
	freshness time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	convs    map[string][]domain.Message
	byID     map[string]string // message id -> profile id
	presence map[string]domain.Presence
	lastErr  string
	version  uint64
}

// New returns an empty state for viewer. freshness is the presence window.
func New(viewer domain.Role, freshness time.Duration) *State {
	return &State{
		viewer:    viewer,
		freshness: freshness,
		now:       time.Now,
		convs:     make(map[string][]domain.Message),
		byID:      make(map[string]string),
		presence:  make(map[string]domain.Presence),
	}
}

// SetClock overrides the time source used for presence freshness.
func (s *State) SetClock(now func() time.Time) { s.now = now }

// ApplyInbound merges one message. A known id is a no-op except that a seen
// marker carried by a redelivery (polling re-emits every row) is copied onto
// the local copy if it had none. Reports whether the state changed.
func (s *State) ApplyInbound(m domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mergeLocked(m)
}

func (s *State) mergeLocked(m domain.Message) bool {
	m.Profile = domain.Profile{}
	if pid, ok := s.byID[m.ID]; ok {
		conv := s.convs[pid]
		for i := range conv {
			if conv[i].ID != m.ID {
				continue
			}
			if conv[i].SeenAt == nil && m.SeenAt != nil {
				conv[i].SeenAt, conv[i].SeenBy = m.SeenAt, m.SeenBy
				s.version++
				return true
			}
			return false
		}
		return false
	}

	conv := append(s.convs[m.ProfileID], m)
	sort.SliceStable(conv, func(i, j int) bool {
		if !conv[i].CreatedAt.Equal(conv[j].CreatedAt) {
			return conv[i].CreatedAt.Before(conv[j].CreatedAt)
		}
		return conv[i].ID < conv[j].ID
	})
	s.convs[m.ProfileID] = conv
	s.byID[m.ID] = m.ProfileID
	s.version++
	return true
}

// ApplySnapshot merges a full conversation snapshot through the same
// idempotent path. Messages are never deleted, so merge equals replace.
func (s *State) ApplySnapshot(msgs []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, m := range msgs {
		if s.mergeLocked(m) {
			changed = true
		}
	}
	return changed
}

// ApplySeen records seen markers on known messages. Unknown ids and ids
// already seen are skipped. Returns how many messages changed.
func (s *State) ApplySeen(ids []string, seenBy domain.Role, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	n := 0
	for id := range want {
		pid, ok := s.byID[id]
		if !ok {
			continue
		}
		conv := s.convs[pid]
		for i := range conv {
			if conv[i].ID == id && conv[i].SeenAt == nil {
				ts, role := at, seenBy
				conv[i].SeenAt, conv[i].SeenBy = &ts, &role
				n++
			}
		}
	}
	if n > 0 {
		s.version++
	}
	return n
}

// ApplyPresence keeps the newest row per profile by LastSeen, mirroring the
// store's last-writer-wins rule so reordered events cannot resurrect state.
func (s *State) ApplyPresence(p domain.Presence) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.presence[p.ProfileID]; ok && p.LastSeen.Before(cur.LastSeen) {
		return false
	}
	p.Profile = domain.Profile{}
	s.presence[p.ProfileID] = p
	s.version++
	return true
}

// Apply dispatches a decoded event. Control frames other than error are
// ignored; an error frame is remembered as the last transport error.
func (s *State) Apply(ev notifier.Event) bool {
	switch ev.Type {
	case notifier.EventMessage:
		if ev.Message != nil {
			return s.ApplyInbound(*ev.Message)
		}
	case notifier.EventPresence:
		if ev.Presence != nil {
			return s.ApplyPresence(*ev.Presence)
		}
	case notifier.EventSeen:
		if ev.Seen != nil {
			return s.ApplySeen(ev.Seen.MessageIDs, ev.Seen.SeenBy, ev.Seen.SeenAt) > 0
		}
	case notifier.EventError:
		s.mu.Lock()
		s.lastErr = ev.Error
		s.mu.Unlock()
	case notifier.EventSubscribed:
		s.mu.Lock()
		s.lastErr = ""
		s.mu.Unlock()
	}
	return false
}

// Messages returns a copy of one conversation in canonical order.
func (s *State) Messages(profileID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.convs[profileID]...)
}

// Conversations lists profile ids with at least one message, sorted.
func (s *State) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.convs))
	for pid := range s.convs {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out
}

// UnreadCount is recomputed from the sequence on every call.
func (s *State) UnreadCount(profileID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.UnreadCount(s.convs[profileID], s.viewer)
}

// TotalUnread sums UnreadCount over every conversation.
func (s *State) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, conv := range s.convs {
		n += domain.UnreadCount(conv, s.viewer)
	}
	return n
}

// Online applies the presence freshness policy at call time.
func (s *State) Online(profileID string) bool {
	s.mu.RLock()
	p, ok := s.presence[profileID]
	s.mu.RUnlock()
	return ok && p.IsFresh(s.now(), s.freshness)
}

// TypingToward reports whether profileID is freshly typing for target.
func (s *State) TypingToward(profileID, target string) bool {
	s.mu.RLock()
	p, ok := s.presence[profileID]
	s.mu.RUnlock()
	if !ok || !p.TypingFresh(s.now(), s.freshness) {
		return false
	}
	return p.TypingFor == nil || *p.TypingFor == target
}

// LastError is the reason of the most recent error frame, cleared when a
// channel subscribes again.
func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Version increases on every change; renderers compare it to skip redraws.
func (s *State) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
