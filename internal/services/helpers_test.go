package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/repo"
	"github.com/tbourn/smsbridge-chat/internal/sms"
)

const (
	adminPhone = "+250780000000"
	userPhone  = "+250781111111"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Logger = logger.Default.LogMode(logger.Silent)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustProfile(t *testing.T, db *gorm.DB, phone string) *domain.Profile {
	t.Helper()
	p, err := repo.EnsureProfile(context.Background(), db, phone, "")
	if err != nil {
		t.Fatalf("profile %s: %v", phone, err)
	}
	return p
}

type eventLog struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (l *eventLog) Publish(ev notifier.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(typ notifier.EventType) []notifier.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []notifier.Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (g *fakeGateway) Send(_ context.Context, to, text string) sms.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, to+"|"+text)
	if g.fail != "" {
		return sms.Result{Error: g.fail}
	}
	return sms.Result{Success: true, MessageID: "gw-1"}
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
