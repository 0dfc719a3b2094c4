// Package domain defines the persistence models for profiles, messages and
// presence. These types are mapped with GORM and shared by the store, the
// services, the realtime layer and the client-side reducer.
package domain

import (
	"regexp"
	"strings"
	"time"
)

// Role identifies which side of a conversation authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the two conversation roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Counterpart returns the other side of the conversation.
func (r Role) Counterpart() Role {
	if r == RoleAdmin {
		return RoleUser
	}
	return RoleAdmin
}

// Profile is a participant identified by phone number. The admin is the
// profile whose phone number matches the configured admin phone; there is no
// separate admin type.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PhoneNumber: unique login key.
//   - Name: display name, the only mutable field.
type Profile struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	PhoneNumber string    `json:"phone_number" gorm:"type:varchar(32);not null;uniqueIndex:ux_profiles_phone"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null;default:''"`
	CreatedAt   time.Time `json:"created_at"   gorm:"index:idx_profiles_created"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// Message is one entry of a conversation. ProfileID always names the
// non-admin party; Sender says who wrote it. Messages are immutable once
// stored except for the seen marker, which is written at most once.
//
// CreatedAt is assigned by the store and is the only ordering key.
type Message struct {
	ID        string     `json:"id"                gorm:"type:char(36);primaryKey"`
	ProfileID string     `json:"profile_id"        gorm:"type:char(36);not null;index:idx_profile_msgs,priority:1"`
	Sender    Role       `json:"sender"            gorm:"type:varchar(16);not null;check:sender IN ('user','admin')"`
	Content   string     `json:"content"           gorm:"type:text;not null"`
	CreatedAt time.Time  `json:"created_at"        gorm:"not null;index:idx_profile_msgs,priority:2"`
	SeenAt    *time.Time `json:"seen_at,omitempty"`
	SeenBy    *Role      `json:"seen_by,omitempty" gorm:"type:varchar(16)"`

	// Profile owns the conversation; messages cascade with it.
	Profile Profile `json:"-" gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// SeenByRole reports whether the message carries a seen marker attributed to r.
func (m Message) SeenByRole(r Role) bool {
	return m.SeenAt != nil && m.SeenBy != nil && *m.SeenBy == r
}

// UnreadCount counts messages written by the other party that the viewer has
// not marked seen. It is always computed from the sequence, never cached.
func UnreadCount(msgs []Message, viewer Role) int {
	from := viewer.Counterpart()
	n := 0
	for i := range msgs {
		if msgs[i].Sender == from && !msgs[i].SeenByRole(viewer) {
			n++
		}
	}
	return n
}

// Presence is the single liveness row of a profile. Rows are upserted and
// never deleted; staleness is decided at read time by IsFresh.
type Presence struct {
	ProfileID string    `json:"profile_id"           gorm:"type:char(36);primaryKey"`
	IsOnline  bool      `json:"is_online"            gorm:"not null;default:false"`
	IsTyping  bool      `json:"is_typing"            gorm:"not null;default:false"`
	TypingFor *string   `json:"typing_for,omitempty" gorm:"type:char(36)"`
	LastSeen  time.Time `json:"last_seen"            gorm:"not null;index"`
	UpdatedAt time.Time `json:"updated_at"`

	Profile Profile `json:"-" gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Presence.
func (Presence) TableName() string { return "presence" }

// IsFresh applies the read-time freshness policy: a profile is online only
// when its flag is set and it was seen within window of now.
func (p Presence) IsFresh(now time.Time, window time.Duration) bool {
	return p.IsOnline && now.Sub(p.LastSeen) <= window
}

// TypingFresh is IsFresh narrowed to the typing indicator.
func (p Presence) TypingFresh(now time.Time, window time.Duration) bool {
	return p.IsTyping && p.IsFresh(now, window)
}

// Conversation is the derived per-profile view served to the admin. It is
// never stored.
type Conversation struct {
	Profile     Profile   `json:"profile"`
	Messages    []Message `json:"messages"`
	UnreadCount int       `json:"unread_count"`
	IsOnline    bool      `json:"is_online"`
	IsTyping    bool      `json:"is_typing"`
}

// Session is the explicit identity of an authenticated participant.
// ID is unique per login and scopes per-session SMS suppression.
type Session struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profile_id"`
	PhoneNumber string    `json:"phone_number"`
	IsAdmin     bool      `json:"is_admin"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Role returns the conversation role the session writes as.
func (s Session) Role() Role {
	if s.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

var phoneRE = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

// NormalizePhone strips common separators and reports whether the result is
// a plausible E.164-style number.
func NormalizePhone(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	return s, phoneRE.MatchString(s)
}
