package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/boscod/outreachguard/config"
	"github.com/boscod/outreachguard/internal/database"
	"github.com/boscod/outreachguard/internal/handlers"
	"github.com/boscod/outreachguard/internal/logger"
	"github.com/boscod/outreachguard/internal/metrics"
	"github.com/boscod/outreachguard/internal/middleware"
	"github.com/boscod/outreachguard/internal/rabbitmq"
	"github.com/boscod/outreachguard/internal/routes"
	"github.com/boscod/outreachguard/internal/services"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/boscod/outreachguard/internal/tracker"
	workers "github.com/boscod/outreachguard/internal/worker"
	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Metrics
	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		gatherer = reg
	}

	// Services
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.SessionExpiry)
	cryptoService, err := services.NewCryptoService(cfg.AppSecret)
	if err != nil {
		log.Error("invalid APP_SECRET", "error", err)
		os.Exit(1)
	}
	authService := services.NewAuthService(st, jwtService)
	notificationService := services.NewNotificationService(st)
	emailService := services.NewEmailService(services.SMTPConfigFromEnv())
	whatsappService := services.NewWhatsAppService(services.WhatsAppConfigFromEnv())
	phoneService := services.NewPhoneVerificationService(st, st, cryptoService, whatsappService, notificationService)
	exportService := services.NewExportService(st)
	riskService := services.NewRiskService(st, st, services.RiskConfig{
		DeviceAccountThreshold: cfg.DeviceAccountLimit,
		IPAccountThreshold:     cfg.IPAccountLimit,
		Window:                 cfg.DuplicateWindow,
	})

	// Event fan-out is optional; the service runs without it.
	var publisher handlers.EventPublisher
	if cfg.RabbitMQURL != "" {
		client, err := rabbitmq.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Warn("RabbitMQ unavailable, verification events disabled", "error", err)
		} else {
			defer client.Close()
			publisher = client

			worker := workers.NewVerificationWorker(client, st, emailService)
			go func() {
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("verification worker stopped", "error", err)
				}
			}()
		}
	}

	// Tracking
	var recorder tracker.Recorder = logger.NewSlogRecorder(log)
	if m != nil {
		recorder = m.Recorder(recorder)
	}

	fingerprints := tracker.NewFingerprintGenerator()
	collector := tracker.NewCollector(
		fingerprints,
		tracker.ContextIPResolver{},
		st,
		riskService,
		handlers.NewToastNotifier(notificationService, publisher),
		tracker.WithRecorder(recorder),
		tracker.WithDuplicatePolicy(cfg.DuplicatePolicy),
		tracker.WithRetryPolicy(cfg.RetryPolicy()),
	)
	registry := tracker.NewRegistry(collector, cfg.SessionExpiry)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:       "OutreachGuard API",
		CaseSensitive: true,
		StrictRouting: false,
		ServerHeader:  "OutreachGuard",
		ErrorHandler:  customErrorHandler,

		// Client IPs come from ProxyHeader only when the peer is a trusted proxy.
		ProxyHeader:             cfg.ProxyHeader,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.TrustedProxies,
		EnableIPValidation:      true,
	})

	// Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Error("panic recovered",
				"panic", e,
				"method", c.Method(),
				"path", c.Path(),
				"stack", string(debug.Stack()),
			)
		},
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} (${latency})\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	// Setup routes
	routes.SetupRoutes(app, routes.Dependencies{
		JWT:                   jwtService,
		Auth:                  authService,
		Notifications:         notificationService,
		Phone:                 phoneService,
		Exports:               exportService,
		Collector:             collector,
		Registry:              registry,
		Fingerprints:          fingerprints,
		Signals:               st,
		Metrics:               m,
		Gatherer:              gatherer,
		BlockDuplicateSignups: cfg.BlockDuplicateSignups,
		SecureCookies:         cfg.IsProduction(),
	})

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutting down server")
		cancel()
		if err := app.Shutdown(); err != nil {
			log.Error("error shutting down", "error", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Info("starting server",
		"addr", addr,
		"env", cfg.Env,
		"store", cfg.StoreDriver,
		"duplicate_policy", cfg.DuplicatePolicy.String(),
		"allowed_origins", cfg.AllowedOrigins,
	)

	if err := app.Listen(addr); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

// openStore returns the configured store and its cleanup.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("connected to database")

	return store.NewBunStore(db), func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}, nil
}

func customErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   "Error",
		"message": err.Error(),
	})
}
