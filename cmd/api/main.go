package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"taskhive.org/internal/auth"
	"taskhive.org/internal/config"
	"taskhive.org/internal/httpapi"
	"taskhive.org/internal/obs"
	"taskhive.org/internal/ratelimit"
	"taskhive.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	codec, err := auth.NewTokenCodec(
		cfg.Auth.Issuer,
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.PostgresDSN != "" {
		pgStore, err := pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Print("TH_PG_DSN not set, using in-memory store (development only)")
		store = auth.NewInMemory()
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		rl, err := ratelimit.NewRedisLimiter(rdb)
		if err != nil {
			log.Fatalf("rate limiter: %v", err)
		}
		limiter = rl
	} else {
		log.Print("TH_REDIS_ADDR not set, using in-process rate limiter")
		limiter = ratelimit.NewLocalLimiter()
	}

	sessions, err := auth.NewService(store, codec)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	resolver, err := auth.NewResolver(store)
	if err != nil {
		log.Fatalf("auth resolver: %v", err)
	}

	api := httpapi.New(sessions, resolver, store, limiter, cfg.Cookie, httpapi.ReadyProbe{DB: db}, version, cfg.StoreTimeout)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting taskhive-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
