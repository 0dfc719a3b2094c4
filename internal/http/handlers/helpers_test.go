package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/http/middleware"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/repo"
	"github.com/tbourn/smsbridge-chat/internal/services"
	"github.com/tbourn/smsbridge-chat/internal/sms"
)

// ---------- test plumbing ----------

const (
	adminPhone = "+250780000000"
	userPhone  = "+250781111111"
	otherPhone = "+250782222222"
)

type fakeGateway struct {
	mu   sync.Mutex
	sent []string
	fail string
}

func (g *fakeGateway) Send(_ context.Context, to, text string) sms.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, to+"|"+text)
	if g.fail != "" {
		return sms.Result{Error: g.fail}
	}
	return sms.Result{Success: true, MessageID: "gw-42"}
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

// testEnv wires real services over a throwaway SQLite file, the way the
// router does, minus the ambient middleware.
type testEnv struct {
	t        *testing.T
	db       *gorm.DB
	feed     *notifier.Feed
	gw       *fakeGateway
	h        *Handlers
	r        *gin.Engine
	admin    *domain.Profile
	adminTok string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
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

	feed := notifier.NewFeed()
	t.Cleanup(func() { _ = feed.Close() })
	if err := notifier.AttachGORM(db, feed); err != nil {
		t.Fatalf("attach feed: %v", err)
	}

	sessions := &services.SessionService{DB: db, AdminPhone: adminPhone, Secret: []byte("handlers-test-secret")}
	admin, err := sessions.EnsureAdmin(context.Background())
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	presence := &services.PresenceService{DB: db}
	msgs := &services.MessageService{DB: db, Events: feed, Presence: presence, AdminProfileID: admin.ID}
	gw := &fakeGateway{}
	disp := &services.Dispatcher{
		Messages: msgs,
		Gateway:  gw,
		Suppressor: services.NewSuppressor(services.NewMemoryStore(time.Minute), services.SuppressionWindows{
			Identical: time.Minute,
		}),
		WebsiteURL: "https://chat.example.com",
	}
	idem := &services.IdempotencyService{DB: db}
	relay := notifier.NewRelay(feed, notifier.RelayOptions{Heartbeat: time.Hour})
	t.Cleanup(func() { _ = relay.Close() })

	h := New(sessions, msgs, disp, presence, Options{AdminProfileID: admin.ID, PollInterval: 2 * time.Second}).
		WithIdempotency(idem).
		WithRelay(relay)

	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	priv := r.Group("",
		middleware.Auth(sessions.Verify),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Exists),
	)
	priv.GET("/auth/me", h.Me)
	priv.GET("/messages", h.ListMessages)
	priv.POST("/messages", h.PostMessage)
	priv.POST("/messages/seen", h.MarkSeen)
	priv.POST("/presence", h.PostPresence)
	priv.GET("/presence", h.ListPresence)
	priv.GET("/stream", h.Stream)
	priv.GET("/ws", h.WebSocket)
	adm := priv.Group("", middleware.RequireAdmin())
	adm.POST("/messages/sms", h.PostSMS)
	adm.GET("/admin/conversations", h.Conversations)

	env := &testEnv{t: t, db: db, feed: feed, gw: gw, h: h, r: r, admin: admin}
	env.adminTok = env.login(adminPhone).Token
	return env
}

// do sends a JSON request with an optional bearer token.
func (e *testEnv) do(method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(phone string) AuthResponse {
	e.t.Helper()
	w := e.do(http.MethodPost, "/auth/register", "", RegisterRequest{PhoneNumber: phone})
	if w.Code != http.StatusCreated {
		e.t.Fatalf("register %s: %d %s", phone, w.Code, w.Body.String())
	}
	return decode[AuthResponse](e.t, w)
}

func (e *testEnv) login(phone string) AuthResponse {
	e.t.Helper()
	w := e.do(http.MethodPost, "/auth/login", "", LoginRequest{PhoneNumber: phone})
	if w.Code != http.StatusOK {
		e.t.Fatalf("login %s: %d %s", phone, w.Code, w.Body.String())
	}
	return decode[AuthResponse](e.t, w)
}

func (e *testEnv) send(token, profileID, content string) *domain.Message {
	e.t.Helper()
	w := e.do(http.MethodPost, "/messages", token, PostMessageRequest{ProfileID: profileID, Content: content})
	if w.Code != http.StatusCreated {
		e.t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	return decode[PostMessageResponse](e.t, w).Message
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, w).Code
}
