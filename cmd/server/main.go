package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/handlers"
	"collab-service/internal/presence"
	"collab-service/internal/pubsub"
	"collab-service/internal/queue"
	"collab-service/internal/room"
	"collab-service/internal/store"
	"collab-service/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	instanceID := cfg.Collab.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	// Cross-instance fan-out goes through Redis when configured, otherwise
	// everything stays in-process (single-instance deployments, tests).
	var broker pubsub.Broker
	if cfg.Redis.URL != "" {
		redisBroker, err := pubsub.NewRedisBroker(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis: %v", err)
		}
		broker = redisBroker
		logger.Info("Using Redis broker for cross-instance fan-out")
	} else {
		broker = pubsub.NewInProcessBroker()
		logger.Info("Using in-process broker (single instance)")
	}
	defer broker.Close()

	// Background archival needs both a database and a Redis-backed queue;
	// without them activity stays in the in-memory feed only.
	var archive room.ActivityRecorder
	var workerCancel context.CancelFunc
	if cfg.Database.URL != "" && cfg.Redis.URL != "" {
		db, err := store.NewPostgresStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database: %v", err)
		}
		defer db.Close()

		queueClient, err := queue.NewAsynqClient(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to create queue client: %v", err)
		}
		defer queueClient.Close()

		worker, err := queue.NewAsynqServer(cfg.Redis.URL, 5)
		if err != nil {
			logger.Fatal("Failed to create queue worker: %v", err)
		}
		store.RegisterArchiveTasks(worker, db)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				logger.Error("Queue worker stopped: %v", err)
			}
		}()

		archiver := store.NewArchiver(queueClient)
		defer archiver.Stop()
		archive = archiver
		logger.Info("Activity archival enabled")
	} else {
		logger.Info("Activity archival disabled (DATABASE_URL and REDIS_URL both required)")
	}

	// Initialize the presence engine and room registry
	verifier := auth.NewJWTVerifier(cfg.JWT.Secret)
	engine := presence.NewEngine(cfg.Collab.IdleTimeout, cfg.Collab.GracePeriod, cfg.Collab.LockTTL, cfg.Collab.OfflineMaxRetries)
	registry := room.NewRegistry(engine, broker, archive, instanceID, room.Options{
		CursorThrottle:  cfg.Collab.CursorThrottle,
		SweepInterval:   cfg.Collab.SweepInterval,
		FeedCapacity:    cfg.Collab.FeedCapacity,
		OfflineQueueMax: cfg.Collab.OfflineQueueMax,
	})

	// Initialize handlers
	wsHandlers := handlers.NewWebSocketHandlers(verifier, registry, cfg.Collab)
	presenceHandlers := handlers.NewPresenceHandlers(verifier, registry)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, wsHandlers, presenceHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("🚀 Collab server started on http://localhost%s (instance %s)", cfg.Server.Port, instanceID)
	logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws?token=<jwt>&room=<id>", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error: %v", err)
	}

	registry.Close()
	if workerCancel != nil {
		workerCancel()
	}
}

func setupRoutes(mux *http.ServeMux, wsHandlers *handlers.WebSocketHandlers, presenceHandlers *handlers.PresenceHandlers) {
	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	// Room sub-routes
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		// /rooms/{id}/presence
		if len(parts) == 4 && parts[3] == "presence" && r.Method == http.MethodGet {
			presenceHandlers.GetRoomPresence(w, r)
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// Operational endpoints
	mux.HandleFunc("/healthz", presenceHandlers.Healthz)
	mux.Handle("/metrics", promhttp.Handler())
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
