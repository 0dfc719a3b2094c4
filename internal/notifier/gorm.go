package notifier

import (
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// Publisher accepts events for fan-out. *Feed implements it.
type Publisher interface {
	Publish(Event)
}

const hookName = "notifier:after_commit"

// AttachGORM turns committed message inserts and presence upserts into feed
// events. The hook runs after GORM commits its implicit transaction, so a
// rolled back write is never published. Writes that change no row (a stale
// presence update losing last-writer-wins) publish nothing.
//
// Writes wrapped in an outer db.Transaction would publish before that outer
// commit; the store never does that for messages or presence.
func AttachGORM(db *gorm.DB, pub Publisher) error {
	return db.Callback().Create().
		After("gorm:commit_or_rollback_transaction").
		Register(hookName, func(tx *gorm.DB) {
			if tx.Error != nil || tx.RowsAffected == 0 || tx.Statement == nil {
				return
			}
			if ev, ok := eventFor(tx.Statement.Dest); ok {
				pub.Publish(ev)
			}
		})
}

func eventFor(dest any) (Event, bool) {
	now := time.Now().UTC()
	switch v := dest.(type) {
	case *domain.Message:
		m := *v
		m.Profile = domain.Profile{}
		return Event{Type: EventMessage, At: now, Message: &m}, true
	case *domain.Presence:
		p := *v
		p.Profile = domain.Profile{}
		return Event{Type: EventPresence, At: now, Presence: &p}, true
	}
	return Event{}, false
}
