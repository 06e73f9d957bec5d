package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/bridge"
	"github.com/zapa-ai/zapa/core/config"
	"github.com/zapa-ai/zapa/core/database"
	"github.com/zapa-ai/zapa/infrastructure/valkey"
	"github.com/zapa-ai/zapa/integration"
	"github.com/zapa-ai/zapa/msgqueue"
	"github.com/zapa-ai/zapa/pkg/crypto"
	"github.com/zapa-ai/zapa/repository"
	"github.com/zapa-ai/zapa/ui/rest"
	"github.com/zapa-ai/zapa/ui/rest/middleware"
	"github.com/zapa-ai/zapa/usecase"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the platform with its HTTP API",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("[APP] Configuration error: %v", err)
	}
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()

	db, err := database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalf("[APP] Database connection failed: %v", err)
	}

	users := repository.NewUserRepository(db)
	if err := users.Init(ctx); err != nil {
		logrus.Fatalf("[APP] Schema migration failed: %v", err)
	}
	configs := repository.NewLLMConfigRepository(db)
	codes := repository.NewAuthCodeRepository(db)

	// Queue store: Valkey in production, in-process when no address is set.
	var vkClient *valkey.Client
	var store msgqueue.Store
	if cfg.Valkey.Address != "" {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Valkey.Address,
			Password:  cfg.Valkey.Password,
			DB:        cfg.Valkey.DB,
			KeyPrefix: cfg.Valkey.KeyPrefix,
		})
		if err != nil {
			logrus.Fatalf("[APP] Valkey connection failed: %v", err)
		}
		store = msgqueue.NewValkeyStore(vkClient)
	} else {
		logrus.Warn("[APP] No REDIS_URL configured, queue runs in-process and is not durable")
		store = msgqueue.NewMemoryStore()
	}

	queue := msgqueue.New(store, msgqueue.Config{
		KeyPrefix:  cfg.Valkey.KeyPrefix,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		TTL:        cfg.Queue.TTL,
	})

	cipher, err := crypto.NewCipher(cfg.Security.EncryptionKey)
	if err != nil {
		logrus.Fatalf("[APP] Cipher setup failed: %v", err)
	}

	bridgeClient := bridge.NewClient(bridge.Config{
		BaseURL:    cfg.Bridge.BaseURL,
		WebhookURL: cfg.WebhookURL(),
		Timeout:    cfg.Bridge.Timeout,
	})
	bridgeClient.Open()

	archiveSvc := archive.NewService(db, cfg.Bridge.SystemNumber)
	agentSvc := usecase.NewAgentService(archiveSvc, configs, users, cipher, bridgeClient, integration.SystemSessionID)
	webhookSvc := usecase.NewWebhookService(archiveSvc, users, agentSvc, queue, cfg.Bridge.SystemNumber)
	llmConfigSvc := usecase.NewLLMConfigService(configs, cipher)
	authSvc := usecase.NewAuthService(users, codes, bridgeClient, integration.SystemSessionID)

	bridgeSetup := integration.NewBridgeSetup(bridgeClient, cfg.WebhookURL())
	monitor := integration.NewMonitor(db, vkClient, queue, bridgeSetup, cfg.Workers.MonitorInterval)
	orchestrator := integration.NewOrchestrator(queue, func(ctx context.Context, userID uint, content string) error {
		_, err := agentSvc.ProcessMessage(ctx, userID, content)
		return err
	}, bridgeSetup, monitor, cfg.Workers.ProcessorWorkers)

	// Bridge may still be pairing at boot; the admin API can retry later.
	if _, err := orchestrator.Initialize(ctx); err != nil {
		logrus.WithError(err).Warn("[APP] Startup initialization incomplete, use POST /api/v1/admin/integration/initialize to retry")
	}

	app := fiber.New(fiber.Config{
		AppName:               "Zapa",
		Network:               "tcp",
		DisableStartupMessage: false,
	})
	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Webhook-Signature",
	}))
	if cfg.App.Debug {
		app.Use(fiberlogger.New())
	}

	rest.InitRestWebhook(app, webhookSvc, cfg.Security.WebhookSecret)
	rest.InitRestIntegration(app, orchestrator, monitor, queue)
	rest.InitRestArchive(app, archiveSvc)
	rest.InitRestLLMConfig(app, llmConfigSvc)
	rest.InitRestAuth(app, authSvc)

	app.All("/api/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API endpoint not found",
			"path":  c.Path(),
		})
	})

	// Graceful shutdown: HTTP first, then workers, then connections.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[APP] Termination signal received, shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("[APP] HTTP shutdown error: %v", err)
		}

		orchestrator.Shutdown()
		bridgeClient.Close()
		queue.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		logrus.Info("[APP] Stopped cleanly")
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("[APP] Failed to start:", err.Error())
	}
}
