package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/validate"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"gennia/config"
	"gennia/domain/room"
	"gennia/events"
	"gennia/server"
	"gennia/storage"
	"gennia/storage/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("error loading config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := migrations.Migrate(ctx, cfg.PostgresURL); err != nil {
		slog.Error("error migrating database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	repo, err := storage.NewPostgresRepo(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("error connecting to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		slog.Info("publishing room events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer publisher.Close()

	// The lobby service speaks well-known types that carry no protovalidate
	// rules, so the interceptor passes them through; handlers check their own
	// arguments. It stays installed for messages that declare rules.
	validateInterceptor, err := validate.NewInterceptor()
	if err != nil {
		slog.Error("error creating interceptor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pool := room.NewPool(cfg.MaxRoomCount, repo)
	hub := server.NewHub(publisher)
	router := server.NewRouter(server.Deps{
		Rooms:          pool,
		Hub:            hub,
		Players:        repo,
		Maps:           repo,
		Socket:         server.NewSocketHandler(pool, hub, repo, rate.Limit(cfg.EventRate), cfg.EventBurst),
		AllowedOrigins: cfg.AllowedOrigins,
		ConnectOptions: []connect.HandlerOption{connect.WithInterceptors(validateInterceptor)},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server running", "addr", srv.Addr, "max_rooms", cfg.MaxRoomCount)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
	slog.Info("server stopped")
}
