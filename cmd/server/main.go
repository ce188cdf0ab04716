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

	"github.com/gorilla/mux"
	"github.com/umar/talkwave/internal/auth"
	"github.com/umar/talkwave/internal/chat"
	"github.com/umar/talkwave/internal/config"
	"github.com/umar/talkwave/internal/database"
	"github.com/umar/talkwave/internal/handlers"
	"github.com/umar/talkwave/internal/middleware"
	redisc "github.com/umar/talkwave/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting chat server", "driver", cfg.DBDriver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.DBDriver); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")
	store := database.NewStore(db)

	// Presence mirror is optional
	var mirror chat.PresenceMirror
	if cfg.RedisURL != "" {
		redisClient, err := redisc.InitRedis(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("failed to init Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		mirror = redisc.NewPresenceMirror(redisClient)
		slog.Info("connected to Redis")
	}

	hub := chat.NewHub(logger, mirror)
	go hub.Run(ctx)
	dispatcher := chat.NewDispatcher(hub, store, logger)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(cfg.CORSOrigin))

	// Public routes
	router.HandleFunc("/health", handlers.Health).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/auth/register", auth.RegisterHandler(store, cfg.JWTSecret, cfg.TokenTTL)).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/auth/login", auth.LoginHandler(store, cfg.JWTSecret, cfg.TokenTTL)).Methods("POST", "OPTIONS")

	// WebSocket
	router.HandleFunc("/ws", chat.ServeWS(ctx, dispatcher, cfg.JWTSecret, chat.ClientOptions{
		SendBuffer: cfg.SendBuffer,
		EventRate:  cfg.EventRate,
		EventBurst: cfg.EventBurst,
	})).Methods("GET")

	// Protected routes
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.HandleFunc("/auth/me", auth.MeHandler(store)).Methods("GET")
	protected.HandleFunc("/rooms", handlers.ListRooms(store)).Methods("GET")
	protected.HandleFunc("/rooms", handlers.CreateRoom(store)).Methods("POST")
	protected.HandleFunc("/rooms/public", handlers.ListPublicRooms(store)).Methods("GET")
	protected.HandleFunc("/rooms/{id:[0-9]+}", handlers.GetRoom(store)).Methods("GET")
	protected.HandleFunc("/rooms/{id:[0-9]+}", handlers.DeleteRoom(store)).Methods("DELETE")
	protected.HandleFunc("/rooms/{id:[0-9]+}/join", handlers.JoinRoom(store, hub)).Methods("POST")
	protected.HandleFunc("/rooms/{id:[0-9]+}/leave", handlers.LeaveRoom(store)).Methods("DELETE")
	protected.HandleFunc("/rooms/{id:[0-9]+}/messages", handlers.GetMessages(store)).Methods("GET")
	protected.HandleFunc("/users/online", handlers.OnlineUsers(hub, store)).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	cancel()
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
