package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/bookstage/chatguard/internal/api"
	"github.com/bookstage/chatguard/internal/config"
	"github.com/bookstage/chatguard/internal/infraction"
	"github.com/bookstage/chatguard/internal/messaging"
	"github.com/bookstage/chatguard/internal/moderation"
	"github.com/bookstage/chatguard/internal/ratelimit"
	"github.com/bookstage/chatguard/internal/strike"
)

func main() {
	log.Println("Starting chatguard moderation service...")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	cfg, err := config.Load(".", "/etc/chatguard")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// PostgreSQL setup.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if cfg.RunMigrations {
		if err := infraction.Migrate(ctx, db); err != nil {
			cancel()
			log.Fatalf("failed to run migrations: %v", err)
		}
		log.Printf("database migrations applied")
	}
	cancel()

	// NATS setup (optional).
	var natsClient *messaging.NATSClient
	if cfg.NATSURL != "" {
		natsConfig := messaging.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		natsConfig.Name = "chatguard-moderator"

		natsClient, err = messaging.NewNATSClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	// Moderation pipeline.
	policy := strike.DefaultPolicy()
	policy.Threshold = cfg.StrikeThreshold
	strikes := strike.NewStore(rdb, policy)
	recorder := infraction.NewStore(db)

	var publisher moderation.EventPublisher
	if natsClient != nil {
		publisher = natsClient
	}

	service := moderation.NewService(
		moderation.ServiceConfig{
			GateFailureMode: cfg.GateFailureMode,
			EffectsTimeout:  cfg.EffectsTimeout,
		},
		moderation.NewClassifier(),
		strikes,
		recorder,
		publisher,
	)

	if natsClient != nil {
		if err := natsClient.ServeModerationCheck(service, cfg.RequestTimeout); err != nil {
			log.Fatalf("failed to subscribe to moderation checks: %v", err)
		}
	}

	handler := api.NewHandler(
		service,
		ratelimit.NewLimiter(rdb),
		ratelimit.NewModerationRule(cfg.RateLimit, cfg.RateWindow),
		cfg.RequestTimeout,
	)
	router := api.NewRouter(handler)
	if cfg.AdminPassword != "" {
		api.NewAdminHandler(strikes, recorder, cfg.RecentWindow).
			Register(router, gin.Accounts{cfg.AdminUser: cfg.AdminPassword})
		log.Printf("admin routes enabled for user %s", cfg.AdminUser)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.Printf("chatguard moderation service running")
	log.Printf("  listen_addr:       %s", cfg.ListenAddr)
	log.Printf("  redis_addr:        %s", cfg.RedisAddr)
	log.Printf("  nats_url:          %s", cfg.NATSURL)
	log.Printf("  gate_failure_mode: %s", cfg.GateFailureMode)
	log.Printf("  rate_limit:        %d per %s", cfg.RateLimit, cfg.RateWindow)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	if natsClient != nil {
		natsClient.Close()
	}
	db.Close()
	rdb.Close()
}
