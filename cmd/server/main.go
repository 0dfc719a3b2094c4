// Command server runs the SMS bridge chat API.
//
// @title                      SMS Bridge Chat API
// @version                    1.0
// @description                Admin/user chat with live sync (stream, WebSocket or polling) and SMS fallback delivery.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                "Bearer <token>" from /auth/login or /auth/register.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/smsbridge-chat/docs"
	"github.com/tbourn/smsbridge-chat/internal/config"
	httpapi "github.com/tbourn/smsbridge-chat/internal/http"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/observability"
	"github.com/tbourn/smsbridge-chat/internal/repo"
	"github.com/tbourn/smsbridge-chat/internal/services"
	"github.com/tbourn/smsbridge-chat/internal/sms"
	"github.com/tbourn/smsbridge-chat/internal/sysutil"
)

// version is set at build time.
var version = "dev"

func main() {
	// ENV
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.InitLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName)
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := sysutil.SignalContext(context.Background())
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	// DB
	db, err := repo.Open(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("db open")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Fatal().Err(err).Msg("db tracing")
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	// Change feed: every committed message/presence row is published.
	feed := notifier.NewFeed()
	if err := notifier.AttachGORM(db, feed); err != nil {
		log.Fatal().Err(err).Msg("attach change feed")
	}

	// Services
	sessions := &services.SessionService{
		DB:         db,
		AdminPhone: cfg.Session.AdminPhone,
		Secret:     []byte(cfg.Session.JWTSecret),
		TTL:        cfg.Session.TTL,
	}
	admin, err := sessions.EnsureAdmin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("ensure admin profile")
	}
	presence := &services.PresenceService{DB: db, Freshness: cfg.Realtime.PresenceFreshness}
	msgs := &services.MessageService{DB: db, Events: feed, Presence: presence, AdminProfileID: admin.ID}

	var store services.SuppressionStore
	if cfg.SMS.RedisURL != "" {
		rdb, err := services.NewRedisClient(ctx, cfg.SMS.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		store = services.NewRedisStore(rdb, "")
	} else {
		store = services.NewMemoryStore(cfg.SMS.Retention)
	}
	suppressor := services.NewSuppressor(store, services.SuppressionWindows{
		Dedupe:    cfg.SMS.DedupeWindow,
		Identical: cfg.SMS.IdenticalWindow,
		Cooldown:  cfg.SMS.Cooldown,
		Retention: cfg.SMS.Retention,
	})
	go suppressor.Run(ctx, time.Minute)

	idem := &services.IdempotencyService{DB: db, TTL: cfg.IdempotencyTTL}
	go idem.Run(ctx, time.Hour)

	if cfg.SMS.APIKey == "" {
		log.Warn().Msg("SMS_API_KEY not set; SMS sends will be stored as failed")
	}
	deps := httpapi.Deps{
		Sessions:       sessions,
		Messages:       msgs,
		Presence:       presence,
		Dispatcher:     &services.Dispatcher{Messages: msgs, Gateway: sms.NewMistaClient(cfg.SMS), Suppressor: suppressor, WebsiteURL: cfg.SMS.WebsiteURL},
		Idempotency:    idem,
		AdminProfileID: admin.ID,
	}

	// Deps.Relay is an interface: leave it nil (not a typed nil) when off.
	var relay *notifier.Relay
	if cfg.Realtime.StreamEnabled {
		relay = notifier.NewRelay(feed, notifier.RelayOptions{
			Heartbeat: cfg.Realtime.HeartbeatInterval,
			QueueSize: cfg.Realtime.QueueSize,
		})
		deps.Relay = relay
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("base_path", cfg.APIBasePath).
			Bool("streams", cfg.Realtime.StreamEnabled).
			Str("db", cfg.DB.Driver).
			Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Streams never finish on their own; end them before draining.
	if relay != nil {
		_ = relay.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	_ = feed.Close()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
