package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/newlearn-go-api/internal/config"
	"github.com/noah-isme/newlearn-go-api/internal/database"
	"github.com/noah-isme/newlearn-go-api/internal/handler"
	"github.com/noah-isme/newlearn-go-api/internal/middleware"
	"github.com/noah-isme/newlearn-go-api/internal/observability"
	"github.com/noah-isme/newlearn-go-api/internal/realtime"
	"github.com/noah-isme/newlearn-go-api/internal/repository"
	"github.com/noah-isme/newlearn-go-api/internal/router"
	"github.com/noah-isme/newlearn-go-api/internal/service"
	cloud "github.com/noah-isme/newlearn-go-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	observability.RegisterMetrics()

	db, err := database.Open(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return fmt.Errorf("nats status %s", natsConn.Status())
			}
			return nil
		}
	}

	if redisClient == nil && natsConn == nil {
		logger.Warn().Msg("no relay transport configured, realtime events stay on this node")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	hub := realtime.NewHub(logger)
	broadcaster := realtime.NewBroadcaster(hub, redisClient, natsConn, cfg.RealtimeChannel, logger)
	broadcaster.Start(rootCtx)

	validate := validator.New(validator.WithRequiredStructEnabled())

	messageRepo := repository.NewMessageRepository(db)
	discussionRepo := repository.NewDiscussionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, broadcaster, hub, validate, logger)
	messageService := service.NewMessageService(messageRepo, broadcaster, validate, logger)
	discussionService := service.NewDiscussionService(discussionRepo, broadcaster, notificationService, validate, logger)

	var uploadService service.UploadService
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Configured() {
		storage, err := cloud.New(cloudCfg, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		uploadService = service.NewUploadService(storage, uploadRepo, cfg.UploadMaxSizeMB, logger)
	} else {
		logger.Warn().Msg("cloudinary not configured, chat media uploads disabled")
	}

	gateway := realtime.NewGateway(broadcaster, service.NewRelayResolver(messageRepo, discussionRepo), realtime.GatewayOptions{
		PingInterval: cfg.WebsocketPingInterval,
		SendBuffer:   cfg.WebsocketSendBuffer,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:         handler.NewChatHandler(messageService, uploadService, middleware.RateLimit("chat", cfg.ChatRateLimit, cfg.ChatRateWindow), logger),
		DiscussionHandler:   handler.NewDiscussionHandler(discussionService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		RealtimeHandler:     handler.NewRealtimeHandler(rootCtx, gateway, logger),
		HealthProbes:        probes,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("node_id", broadcaster.NodeID()).Msg("server starting")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, cancelRoot)
}

func waitForShutdown(app *fiber.App, stopRealtime context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	// Closing the realtime context ends websocket sessions and relay consumers
	// so Shutdown does not wait on long-lived connections.
	stopRealtime()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
