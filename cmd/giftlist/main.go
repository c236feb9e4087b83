package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/giftlist/internal/api"
	"github.com/Kerhoff/giftlist/internal/auth"
	"github.com/Kerhoff/giftlist/internal/claim"
	"github.com/Kerhoff/giftlist/internal/config"
	"github.com/Kerhoff/giftlist/internal/live"
	"github.com/Kerhoff/giftlist/internal/metrics"
	"github.com/Kerhoff/giftlist/internal/repository"
	"github.com/Kerhoff/giftlist/internal/repository/memory"
	"github.com/Kerhoff/giftlist/internal/repository/postgres"
	"github.com/Kerhoff/giftlist/internal/service"
	"github.com/Kerhoff/giftlist/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// stores groups the repositories of one store driver.
type stores struct {
	tx        repository.TxManager
	users     repository.UserRepository
	wishlists repository.WishlistRepository
	claims    repository.ClaimRepository
	close     func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	logger.WithFields(l, logrus.Fields{
		"store":    cfg.StoreDriver,
		"port":     cfg.Port,
		"redis":    cfg.RedisURL != "",
		"identity": cfg.AllowAuthenticatedIdentityOnReserve,
	}).Info("Starting giftlist...")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, l)
	if err != nil {
		l.Fatalf("Failed to open store: %v", err)
	}
	defer st.close()

	m := metrics.New()

	// Live updates
	hub := live.NewHub(l, live.WithObserver(m))
	var publisher live.Publisher = hub
	var wg sync.WaitGroup

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			l.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			l.Fatalf("Failed to connect to redis: %v", err)
		}

		bridge := live.NewRedisBridge(client, hub, l)
		publisher = bridge

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.WithError(err).Error("Redis bridge stopped; live updates are now local to this instance")
			}
		}()
	}

	// Service layer
	claims := claim.New(st.tx, st.claims, publisher, l, claim.Config{
		AllowAuthenticatedIdentityOnReserve: cfg.AllowAuthenticatedIdentityOnReserve,
		WriteTimeout:                        cfg.ClaimWriteTimeout,
	}, m)
	svc := service.New(l, st.users, st.wishlists, claims, publisher,
		auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL),
		auth.NewPasswordHasher(cfg.BcryptCost),
	)

	// HTTP API
	apiServer := api.NewServer(svc, live.NewWSHandler(hub, l, cfg.ClientOrigin), l, api.Options{
		ClientOrigin:   cfg.ClientOrigin,
		RateLimitRPS:   cfg.PublicRateLimitRPS,
		RateLimitBurst: cfg.PublicRateLimitBurst,
		Instrument:     m.InstrumentHandler,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.PrometheusPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("HTTP server error: %v", err)
			stop()
		}
	}()

	go func() {
		l.Infof("Metrics server listening on :%s", cfg.PrometheusPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("Metrics server error: %v", err)
		}
	}()

	l.Info("giftlist started successfully")

	<-ctx.Done()
	l.Info("Received shutdown signal...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; they end
	// when the process exits.
	l.Info("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		l.WithError(err).Warn("Metrics server shutdown incomplete")
	}
	wg.Wait()

	l.Info("giftlist stopped")
}

func openStores(ctx context.Context, cfg *config.Config, l *logrus.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		l.Warn("Using in-memory store; data is lost on restart and instances do not share state")
		s := memory.New()
		return &stores{
			tx:        s,
			users:     s.Users(),
			wishlists: s.Wishlists(),
			claims:    s.Claims(),
			close:     func() error { return nil },
		}, nil
	}

	db, err := config.NewDatabase(ctx, cfg.DatabaseURL, cfg.DBPool, l)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		tx:        postgres.NewTxManager(db.DB),
		users:     postgres.NewUserRepository(db.DB),
		wishlists: postgres.NewWishlistRepository(db.DB),
		claims:    postgres.NewClaimRepository(db.DB),
		close:     db.Close,
	}, nil
}
