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

	_ "github.com/jackc/pgx/v5/stdlib"

	"credence.dev/internal/auth"
	"credence.dev/internal/config"
	"credence.dev/internal/httpapi"
	"credence.dev/internal/obs"
)

var version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CREDENCE_COMMIT"))
	logger := obs.NewSlog(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)
	hasher := auth.NewSecretHasher(auth.DefaultArgon2idParams())
	codec, err := auth.NewTokenCodec([]byte(cfg.AuthSecret), cfg.AuthIssuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	engine, err := auth.NewService(store, hasher, codec,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithLogger(logger),
		auth.WithMetrics(obs.AuthMetrics{}),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	resolver := auth.NewPrincipalResolver(codec, store)

	// HTTP API
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, engine, resolver,
		httpapi.WithCookieSecure(cfg.CookieSecure))

	handler := httpapi.RequestID(
		httpapi.Logging(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.RateLimit(
						httpapi.MaxBodyBytes(api.Handler(), cfg.MaxBodyBytes),
						cfg.RateLimitBurst, cfg.RateLimitRPS)))))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting credence-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
