package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm/logger"

	"github.com/tbourn/smsbridge-chat/internal/config"
	"github.com/tbourn/smsbridge-chat/internal/http/handlers"
	"github.com/tbourn/smsbridge-chat/internal/http/middleware"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/repo"
	"github.com/tbourn/smsbridge-chat/internal/services"
	"github.com/tbourn/smsbridge-chat/internal/sms"
)

const adminPhone = "+250780000000"

type okGateway struct{}

func (okGateway) Send(context.Context, string, string) sms.Result {
	return sms.Result{Success: true, MessageID: "gw"}
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Realtime:    config.RealtimeConfig{PollInterval: time.Second},
	}
}

// newDeps builds real services over a temp SQLite file.
func newDeps(t *testing.T, withRelay bool) Deps {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
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
		t.Fatalf("attach: %v", err)
	}

	sessions := &services.SessionService{DB: db, AdminPhone: adminPhone, Secret: []byte("router-secret")}
	admin, err := sessions.EnsureAdmin(context.Background())
	if err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	presence := &services.PresenceService{DB: db}
	msgs := &services.MessageService{DB: db, Events: feed, Presence: presence, AdminProfileID: admin.ID}
	d := Deps{
		Sessions:       sessions,
		Messages:       msgs,
		Presence:       presence,
		Dispatcher:     &services.Dispatcher{Messages: msgs, Gateway: okGateway{}},
		Idempotency:    &services.IdempotencyService{DB: db},
		AdminProfileID: admin.ID,
	}
	if withRelay {
		relay := notifier.NewRelay(feed, notifier.RelayOptions{Heartbeat: time.Hour})
		t.Cleanup(func() { _ = relay.Close() })
		d.Relay = relay
	}
	return d
}

func serve(r *gin.Engine, method, path, token string, body any, hdr ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
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
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newDeps(t, false), baseConfig())

	// /health works
	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	if w := serve(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	if w := serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}

	// Swagger is off by default.
	if w := serve(r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be disabled, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newDeps(t, false), cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := serve(r, http.MethodGet, "/health", "", nil, "Origin", "http://example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	// non-root prefix
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func Test_streamExclusions(t *testing.T) {
	got := streamExclusions("/api/v1", []string{"/stream", "/ws"})
	if len(got) != 2 || got[0] != "/api/v1/stream" || got[1] != "/api/v1/ws" {
		t.Fatalf("got %v", got)
	}
	if got := streamExclusions("/", []string{"/ws"}); got[0] != "/ws" {
		t.Fatalf("root base: %v", got)
	}
}

// A full conversation round trip through the production middleware stack.
func TestPipeline_ConversationRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	RegisterRoutes(r, newDeps(t, false), cfg)

	w := serve(r, http.MethodPost, "/api/v1/auth/register", "", handlers.RegisterRequest{PhoneNumber: "+250781111111"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	var user handlers.AuthResponse
	_ = json.Unmarshal(w.Body.Bytes(), &user)

	w = serve(r, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{PhoneNumber: adminPhone})
	var admin handlers.AuthResponse
	_ = json.Unmarshal(w.Body.Bytes(), &admin)
	if !admin.IsAdmin {
		t.Fatalf("admin login: %s", w.Body.String())
	}

	// Unauthenticated access is rejected before reaching handlers.
	if w := serve(r, http.MethodGet, "/api/v1/messages", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous read: %d", w.Code)
	}

	body := handlers.PostMessageRequest{Content: "hello"}
	if w := serve(r, http.MethodPost, "/api/v1/messages", user.Token, body, middleware.HeaderIdempotencyKey, "k-1"); w.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/api/v1/messages", user.Token, body, middleware.HeaderIdempotencyKey, "k-1")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d %v", w.Code, w.Header())
	}

	// Users are kept out of admin routes.
	if w := serve(r, http.MethodGet, "/api/v1/admin/conversations", user.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("user on admin route: %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/api/v1/admin/conversations", admin.Token, nil)
	var snap handlers.ConversationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil || snap.TotalUnread != 1 {
		t.Fatalf("snapshot: %v %s", err, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/messages", user.Token, nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("read: %d %v", w.Code, w.Header())
	}
}

func TestPipeline_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 2
	RegisterRoutes(r, newDeps(t, false), cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = serve(r, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{PhoneNumber: adminPhone})
	}
	if last.Code != http.StatusTooManyRequests || last.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", last.Code)
	}
}

func TestPipeline_StreamDisabledWithoutRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	RegisterRoutes(r, newDeps(t, false), cfg)

	w := serve(r, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{PhoneNumber: adminPhone})
	var admin handlers.AuthResponse
	_ = json.Unmarshal(w.Body.Bytes(), &admin)

	w = serve(r, http.MethodGet, "/api/v1/stream", admin.Token, nil, "Accept-Encoding", "gzip")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("stream without relay: %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") == "gzip" {
		t.Fatalf("stream routes must not be compressed")
	}

	w = serve(r, http.MethodGet, "/api/v1/auth/me", admin.Token, nil)
	var me handlers.MeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil || me.StreamEnabled {
		t.Fatalf("me should advertise polling only: %v %s", err, w.Body.String())
	}

	if w := serve(r, http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusOK {
		t.Fatalf("swagger ui: %d", w.Code)
	}
}

func TestPipeline_StreamWithRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newDeps(t, true), baseConfig())
	srv := httptest.NewServer(r)
	defer srv.Close()

	w := serve(r, http.MethodPost, "/api/v1/auth/login", "", handlers.LoginRequest{PhoneNumber: adminPhone})
	var admin handlers.AuthResponse
	_ = json.Unmarshal(w.Body.Bytes(), &admin)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream?token="+admin.Token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	ev, err := notifier.DecodeEvent(readLine(t, resp.Body))
	if err != nil || ev.Type != notifier.EventConnected {
		t.Fatalf("first frame: %+v %v", ev, err)
	}
}

func readLine(t *testing.T, r io.Reader) []byte {
	t.Helper()
	var out []byte
	b := make([]byte, 1)
	for {
		if _, err := r.Read(b); err != nil {
			t.Fatalf("read: %v", err)
		}
		if b[0] == '\n' {
			return out
		}
		out = append(out, b[0])
	}
}
