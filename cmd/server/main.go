package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"chat-platform/internal/auth"
	"chat-platform/internal/config"
	"chat-platform/internal/database"
	"chat-platform/internal/events"
	"chat-platform/internal/handlers"
	"chat-platform/internal/hub"
	"chat-platform/internal/identity"
	"chat-platform/internal/membership"
	"chat-platform/internal/metrics"
	"chat-platform/internal/presence"
	"chat-platform/internal/router"
	"chat-platform/internal/services"
	"chat-platform/internal/summary"
	"chat-platform/internal/websocket"
	"chat-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply schema: %v", err)
	}

	// Presence is shared by every hub
	registry := presence.NewRegistry()
	registry.AddListener(metrics.NewPresenceGauge(registry.Count))

	var mirror *presence.RedisMirror
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		mirror = presence.NewRedisMirror(rdb, registry, cfg.Redis.PresenceKey, cfg.Redis.PresenceResync)
		logger.Info("Mirroring presence to redis %s", cfg.Redis.Addr)
	}

	publisher := newPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Error closing event publishers: %v", err)
		}
	}()

	// Initialize services
	resolver := identity.NewResolver(db, cfg.Identity.CacheSize, cfg.Identity.CacheTTL)
	authService := auth.NewService(resolver, cfg)

	hubOpts := hub.Options{
		Directory:    hub.NewDirectory(),
		Store:        db,
		Publisher:    publisher,
		HistorySize:  cfg.Hub.HistorySize,
		StoreTimeout: cfg.Hub.StoreTimeout,
	}
	roomRouter := router.New(membership.New(), registry)
	rooms := hub.NewRoomHub(roomRouter, hubOpts)
	groups := hub.NewGroupHub(router.New(membership.New(), registry), db, hubOpts)
	private := hub.NewPrivateHub(router.NewPrivate(registry), resolver, hubOpts)

	var summarizer summary.Summarizer
	if cfg.AI.APIKey != "" {
		summarizer = summary.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Timeout)
	} else {
		logger.Warn("AI_API_KEY not set, summaries are disabled")
	}
	summaries := summary.NewService(db, summarizer, cfg.AI.MaxMessages)
	presenceService := services.NewPresenceService(roomRouter.Members(), registry, db, resolver)

	// Initialize handlers
	tracker := websocket.NewTracker()
	wsHandlers := handlers.NewWebSocketHandlers(authService, websocket.Options{
		SendBuffer:     cfg.Hub.SendBuffer,
		CommandBuffer:  cfg.Hub.CommandBuffer,
		MaxMessageSize: cfg.Hub.MaxMessageSize,
		RateLimit:      cfg.Hub.RateLimit,
		RateBurst:      cfg.Hub.RateBurst,
		Tracker:        tracker,
	}, cfg.Server.AllowedOrigins)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := handlers.NewRouter(handlers.Routes{
		Auth:           authService,
		AuthHandlers:   handlers.NewAuthHandlers(presenceService),
		RoomHandlers:   handlers.NewRoomHandlers(presenceService, summaries, db),
		WebSocket:      wsHandlers,
		Rooms:          rooms,
		Groups:         groups,
		Private:        private,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	server.RegisterOnShutdown(tracker.CloseAll)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
		printAPIEndpoints()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if mirror != nil {
		g.Go(func() error {
			return mirror.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error: %v", err)
	}
}

func newPublisher(cfg *config.Config) events.Publisher {
	var pubs events.Multi
	if cfg.Events.NATSURL != "" {
		p, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			logger.Fatal("Failed to connect to NATS: %v", err)
		}
		pubs = append(pubs, p)
		logger.Info("Publishing messages to NATS under %s.*", cfg.Events.SubjectPrefix)
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			logger.Fatal("Failed to connect to Kafka: %v", err)
		}
		pubs = append(pubs, p)
		logger.Info("Publishing messages to Kafka topic %s", cfg.Events.KafkaTopic)
	}
	if len(pubs) == 0 {
		return events.Noop{}
	}
	return pubs
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   GET  /ws/room?token=")
	logger.Info("   GET  /ws/group?token=")
	logger.Info("   GET  /ws/private?token=")
	logger.Info("   GET  /me")
	logger.Info("   GET  /rooms/{id}/active")
	logger.Info("   POST /rooms/{id}/summary")
	logger.Info("   POST /groups/{id}/summary")
	logger.Info("   GET  /presence/online")
	logger.Info("   GET  /presence/{userId}")
	logger.Info("   GET  /metrics")
}
