package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gigbook/backend/docs"
	"github.com/gigbook/backend/internal/audit"
	"github.com/gigbook/backend/internal/config"
	"github.com/gigbook/backend/internal/database"
	"github.com/gigbook/backend/internal/handlers"
	"github.com/gigbook/backend/internal/logger"
	"github.com/gigbook/backend/internal/notifications"
	"github.com/gigbook/backend/internal/providers"
	"github.com/gigbook/backend/internal/services"
	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// @title Gigbook Payments API
// @version 1.0
// @description Escrow, wallet and settlement API for musician bookings
// @host localhost:8080
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	feeRate, err := services.ParseFeeRate(cfg.Escrow.FeeRate)
	if err != nil {
		zl.Fatal("invalid escrow.fee_rate", zap.Error(err))
	}
	if cfg.JWT.SecretKey == "" {
		zl.Fatal("jwt.secret_key is required")
	}

	db, err := database.InitDB(cfg.Database, zl)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			zl.Fatal("failed to migrate schema", zap.Error(err))
		}
	}

	redisClient := database.InitRedis(cfg.Redis, zl)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Notifications go through the asynq queue when Redis is reachable.
	var notifier services.Notifier = notifications.NewLogNotifier(zl)
	var worker *asynq.Server
	if redisClient != nil {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.QueueDB,
		}
		queueClient := asynq.NewClient(redisOpt)
		defer queueClient.Close()
		notifier = notifications.NewQueueNotifier(queueClient, cfg.Notifications, zl)

		worker = notifications.NewServer(redisOpt, cfg.Notifications, zl)
		if err := worker.Start(notifications.NewServeMux(notifications.NewLogDeliverer(zl), zl)); err != nil {
			zl.Error("failed to start notification worker", zap.Error(err))
			worker = nil
		}
	}

	auditLog := audit.NewLogger(zl)
	ledger := services.NewLedgerService(db, auditLog, zl)
	escrow := services.NewEscrowService(db, ledger, notifier, auditLog, zl, services.EscrowConfig{
		FeeRate:          feeRate,
		AutoReleaseAfter: cfg.Escrow.AutoReleaseAfter,
	})
	compliance := services.NewComplianceService(db, services.ComplianceThresholds{
		Warning:          cfg.Compliance.WarningThreshold,
		Suspension:       cfg.Compliance.SuspensionThreshold,
		NoShowSuspension: cfg.Compliance.NoShowSuspension,
	}, notifier, zl)
	bookings := services.NewBookingService(db, escrow, compliance, notifier, zl, services.BookingConfig{
		Currency:         cfg.Escrow.Currency,
		AutoReleaseAfter: cfg.Escrow.AutoReleaseAfter,
		LateCancelWindow: cfg.Escrow.LateCancelWindow,
	})

	registry := providers.NewRegistry(
		providers.NewPaystack(providers.PaystackConfig{
			BaseURL:       cfg.Payments.Paystack.BaseURL,
			SecretKey:     cfg.Payments.Paystack.SecretKey,
			WebhookSecret: cfg.Payments.Paystack.WebhookSecret,
			Timeout:       cfg.Payments.VerifyTimeout,
		}, nil),
		providers.NewStripe(providers.StripeConfig{
			SecretKey:     cfg.Payments.Stripe.SecretKey,
			WebhookSecret: cfg.Payments.Stripe.WebhookSecret,
		}, nil),
	)
	gateway := services.NewPaymentGateway(registry, escrow, services.NewPaymentEventStore(db), zl, services.GatewayConfig{
		VerifyAttempts: cfg.Payments.VerifyAttempts,
		VerifyBackoff:  cfg.Payments.VerifyBackoff,
		VerifyRPS:      cfg.Payments.VerifyRPS,
	})

	payouts := services.NewPayoutService(db, ledger,
		services.NewISO20022Builder(cfg.Payouts.InstitutionBIC, cfg.Payouts.InstitutionName),
		services.NewLogSettlementSender(zl), notifier, zl)
	statements := services.NewStatementService(ledger)

	var locker services.Locker
	if redisClient != nil {
		locker = services.NewRedisLocker(redisClient)
	}
	scheduler := services.NewSettlementScheduler(db, escrow, compliance, locker, notifier, zl, services.SchedulerConfig{
		Workers:          cfg.Scheduler.Workers,
		BatchSize:        cfg.Scheduler.BatchSize,
		AutoReleaseAfter: cfg.Escrow.AutoReleaseAfter,
		IncompleteAfter:  cfg.Scheduler.IncompleteAfter,
		LockTTL:          cfg.Scheduler.LockTTL,
		ReminderEvery:    cfg.Scheduler.ReminderEvery,
	})

	if cfg.Scheduler.Enabled {
		c := cron.New()
		_, err := c.AddFunc(cfg.Scheduler.CronSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.LockTTL)
			defer cancel()
			if _, err := scheduler.RunAll(ctx); err != nil {
				zl.Error("scheduled sweeps failed", zap.Error(err))
			}
		})
		if err != nil {
			zl.Fatal("invalid scheduler.cron_spec", zap.Error(err))
		}
		c.Start()
		defer c.Stop()
		zl.Info("in-process scheduler started", zap.String("spec", cfg.Scheduler.CronSpec))
	}

	if u, err := url.Parse(cfg.Server.PublicURL); err == nil && u.Host != "" {
		docs.SwaggerInfo.Host = u.Host
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Bookings:            handlers.NewBookingHandler(bookings, escrow, zl),
		Payments:            handlers.NewPaymentHandler(gateway, zl),
		Wallet:              handlers.NewWalletHandler(ledger, statements, payouts, zl),
		Admin:               handlers.NewAdminHandler(escrow, compliance, payouts, zl),
		Scheduler:           handlers.NewSchedulerHandler(scheduler, zl),
		JWTSecret:           cfg.JWT.SecretKey,
		SchedulerSecretHash: cfg.Scheduler.SecretHash,
		SwaggerURL:          cfg.Server.PublicURL + "/swagger/doc.json",
		RequestTimeout:      cfg.Escrow.TransactionTimeout,
		Log:                 zl,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		zl.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zl.Error("server forced to shutdown", zap.Error(err))
	}
	if worker != nil {
		worker.Shutdown()
	}
	zl.Info("server stopped")
}
