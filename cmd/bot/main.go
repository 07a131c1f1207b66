package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatagent/internal/authcode"
	"chatagent/internal/bulk"
	"chatagent/internal/config"
	"chatagent/internal/conversation"
	"chatagent/internal/dispatch"
	"chatagent/internal/flow"
	"chatagent/internal/gateway"
	"chatagent/internal/handler"
	"chatagent/internal/middleware"
	"chatagent/internal/repository/postgres"
	"chatagent/internal/service"

	"github.com/golang-migrate/migrate/v4"
	postgresdb "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v3"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting chat agent")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Configuration loaded successfully")

	// Connect to database with retries
	db, err := connectDatabase(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Run migrations
	if err := runMigrations(db, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	logger.Info("Database migrations completed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	userRepo := postgres.NewUserRepo(db)
	settingsRepo := postgres.NewSettingsRepo(db)

	// Initialize services
	profiles := service.NewProfileService(userRepo, logger)
	settings := service.NewSettingsService(settingsRepo)

	// Initialize Telegram bot
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		// Updates must reach the ordering middleware in arrival order
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			logUpdateError(logger, err, c)
		},
	})
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	logger.Info("Telegram bot initialized")

	// Login codes go to the account that shared the phone number
	issuer := authcode.NewIssuer(profiles, func(ctx context.Context, chat int64, text string) error {
		_, err := bot.Send(tele.ChatID(chat), text)
		return err
	}, authcode.Options{
		TTL:             cfg.FlowTimeout,
		TwoFactorPhones: cfg.TwoFactorPhones,
	}, logger)
	gw := gateway.NewTelegram(bot, issuer, logger)

	// Bulk operations
	jobs := bulk.NewJobs(ctx, logger)
	joins := bulk.NewRunner("batch", bulk.Options{
		MaxItems:    cfg.Batch.Limit,
		Parallelism: cfg.Batch.Parallelism,
	}, logger)
	broadcasts := bulk.NewRunner("broadcast", bulk.Options{
		MaxItems:    cfg.Broadcast.Limit,
		Parallelism: cfg.Broadcast.Parallelism,
		Rate:        cfg.Broadcast.Rate,
	}, logger)

	// Conversation state
	steps := flow.New(flow.Deps{
		Gateway:    gw,
		Profiles:   profiles,
		Settings:   settings,
		Jobs:       jobs,
		Joins:      joins,
		Broadcasts: broadcasts,
		Logger:     logger,
	})
	machine, err := conversation.NewMachine(steps.Steps(), logger,
		conversation.WithTimeout(cfg.FlowTimeout),
		conversation.WithExpireHook(steps.Expired),
		conversation.WithContext(context.WithoutCancel(ctx)),
	)
	if err != nil {
		logger.Fatal("Failed to create conversation machine", zap.Error(err))
	}

	// Global middleware must be in place before any handler is registered
	dispatcher := dispatch.New(context.WithoutCancel(ctx), logger)
	bot.Use(middleware.Ordered(dispatcher, func(err error, c tele.Context) {
		logUpdateError(logger, err, c)
	}, logger))

	// Initialize handler
	h := handler.NewHandler(handler.Deps{
		Bot:      bot,
		Gateway:  gw,
		Machine:  machine,
		Jobs:     jobs,
		Joins:    joins,
		Profiles: profiles,
		Activity: service.NewActivityService(profiles, gw, cfg.LogChannelID, logger),
		Options: handler.Options{
			StartImage: cfg.StartImage,
			JoinLinks:  cfg.JoinLinks,
		},
		Logger: logger,
	})
	h.RegisterHandlers(middleware.AdminOnly(cfg.AdminIDs, logger))

	logger.Info("Handlers registered")

	g, gctx := errgroup.WithContext(ctx)

	// Start bot in background
	g.Go(func() error {
		logger.Info("Bot started successfully")
		bot.Start()
		return nil
	})
	g.Go(func() error {
		runSweepJob(gctx, machine, cfg.SweepInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, stopping bot...")
		bot.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Background task failed", zap.Error(err))
	}

	// Graceful shutdown: finish queued updates, then stop jobs and flows
	dispatcher.Close()
	jobs.Wait()
	machine.Close()

	logger.Info("Bot stopped gracefully")
}

func logUpdateError(logger *zap.Logger, err error, c tele.Context) {
	fields := []zap.Field{zap.Error(err)}
	if c != nil && c.Sender() != nil {
		fields = append(fields, zap.Int64("user_id", c.Sender().ID))
	}
	logger.Error("Update handling failed", fields...)
}

// connectDatabase connects to PostgreSQL with retries
func connectDatabase(dsn string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Warn("Failed to open database connection",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(retryDelay)
			continue
		}

		// Test connection
		if err = db.Ping(); err != nil {
			logger.Warn("Failed to ping database",
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			db.Close()
			time.Sleep(retryDelay)
			continue
		}

		// Connection successful
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgresdb.WithInstance(db, &postgresdb.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	return applyMigrations(m.Up, logger)
}

// applyMigrations runs up and reports whether anything changed
func applyMigrations(up func() error, logger *zap.Logger) error {
	err := up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to run migrations: %w", err)
	default:
		logger.Info("Migrations applied successfully")
	}
	return nil
}

// runSweepJob periodically expires flows whose deadline passed
func runSweepJob(ctx context.Context, machine *conversation.Machine, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sweep job stopped")
			return
		case now := <-ticker.C:
			if n := machine.ExpireStale(now); n > 0 {
				logger.Info("Expired stale flows", zap.Int("count", n))
			}
		}
	}
}
