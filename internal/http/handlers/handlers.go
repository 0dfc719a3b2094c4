// Package handlers exposes the chat over HTTP: sessions, conversation
// snapshots, sends (internal and SMS), seen markers, presence, and the
// realtime relay as NDJSON, Server-Sent Events or WebSocket.
//
// Handlers are transport-thin. They read the session set by the auth
// middleware, validate request shape, delegate to services and translate
// errors through failErr.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/http/middleware"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/repo"
	"github.com/tbourn/smsbridge-chat/internal/services"
)

//
// Service contracts (context-aware)
//

// SessionService issues and verifies sessions.
type SessionService interface {
	Register(ctx context.Context, phone, name string) (*services.Login, error)
	Login(ctx context.Context, phone string) (*services.Login, error)
}

// MessageService reads conversations and records seen markers.
type MessageService interface {
	List(ctx context.Context, profileID string, desc bool) ([]domain.Message, error)
	Stats(ctx context.Context, profileID string) (repo.ConversationStats, error)
	MarkSeen(ctx context.Context, ids []string, seenBy domain.Role, scopeProfileID string) (int, error)
	AdminSnapshot(ctx context.Context) ([]domain.Conversation, error)
}

// Dispatcher sends messages on behalf of a session.
type Dispatcher interface {
	SendInternal(ctx context.Context, sess domain.Session, profileID, content string) (*domain.Message, error)
	SendWithSMSFallback(ctx context.Context, sess domain.Session, profileID, content string) (*services.SMSOutcome, error)
}

// PresenceService records and reads liveness.
type PresenceService interface {
	Upsert(ctx context.Context, u services.PresenceUpdate) (bool, error)
	ListOnline(ctx context.Context) ([]string, error)
	Typing(ctx context.Context, target string) ([]string, error)
}

// IdempotencyStore replays sends that carried an Idempotency-Key.
type IdempotencyStore interface {
	Replay(ctx context.Context, profileID, key string) (*domain.Message, error)
	Remember(ctx context.Context, profileID, key, messageID string, status int) error
}

// Streamer opens relay channels (strategy B).
type Streamer interface {
	Open(ctx context.Context, subject notifier.Subject) (*notifier.Channel, error)
}

//
// Handler wiring
//

// Options carries deployment facts the handlers advertise or enforce.
type Options struct {
	// AdminProfileID routes the admin's presence to every user.
	AdminProfileID string
	// PollInterval is advertised to clients using the polling strategy.
	PollInterval time.Duration
	// AllowedOrigins restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Handlers groups every endpoint.
type Handlers struct {
	sessions SessionService
	msgSvc   MessageService
	dispatch Dispatcher
	presence PresenceService
	idem     IdempotencyStore
	relay    Streamer
	opts     Options
}

// New constructs Handlers bound to the given services.
func New(sessions SessionService, msgSvc MessageService, dispatch Dispatcher, presence PresenceService, opts Options) *Handlers {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Handlers{sessions: sessions, msgSvc: msgSvc, dispatch: dispatch, presence: presence, opts: opts}
}

// WithIdempotency enables Idempotency-Key replays on POST /messages.
func (h *Handlers) WithIdempotency(store IdempotencyStore) *Handlers {
	h.idem = store
	return h
}

// WithRelay enables /stream and /ws.
func (h *Handlers) WithRelay(relay Streamer) *Handlers {
	h.relay = relay
	return h
}

// session returns the authenticated session or aborts with 401.
func session(c *gin.Context) (domain.Session, bool) {
	s, found := middleware.SessionFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or missing session")
	}
	return s, found
}

// subject scopes a realtime subscription to what sess may see.
func (h *Handlers) subject(sess domain.Session) notifier.Subject {
	return notifier.Subject{
		ProfileID:      sess.ProfileID,
		Admin:          sess.IsAdmin,
		AdminProfileID: h.opts.AdminProfileID,
	}
}
