package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"regbot/config"
	"regbot/internal/conversation"
	"regbot/internal/handler"
	"regbot/internal/ratelimit"
	"regbot/internal/repository"
	"regbot/traits/database"
	"regbot/traits/logger"
)

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	zapLogger, err := logger.NewLogger(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		panic(err)
	}

	os.Exit(exitCode(zapLogger, run(cfg, zapLogger)))
}

// exitCode logs how the application stopped and flushes the logger before
// the process exits.
func exitCode(zapLogger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		zapLogger.Error("application stopped with error", zap.Error(err))
		code = 1
	} else {
		zapLogger.Info("Application stopped successfully")
	}
	_ = zapLogger.Sync()
	return code
}

func run(cfg *config.Config, zapLogger *zap.Logger) (err error) {
	if err := cfg.ValidateConfig(); err != nil {
		zapLogger.Error("invalid configuration", zap.Error(err))
		return err
	}

	zapLogger.Info("Starting registration bot",
		zap.String("environment", cfg.Environment),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("db_name", cfg.DBName),
		zap.Strings("social_platforms", cfg.SocialPlatforms),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			zapLogger.Info("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	// Initialize database
	db, err := database.InitDatabase(cfg, zapLogger)
	if err != nil {
		zapLogger.Error("failed to initialize database", zap.Error(err))
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	// Sessions are only accepted once the users table is in place
	schema := database.NewSchema(db, cfg.DBDriver, zapLogger)
	schemaCtx, schemaCancel := context.WithTimeout(ctx, 30*time.Second)
	err = schema.EnsureSchema(schemaCtx)
	schemaCancel()
	if err != nil {
		zapLogger.Error("failed to create tables", zap.Error(err))
		return err
	}

	userRepo := repository.NewUserRepository(db, zapLogger)

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RateLimitEnabled() {
		redisLimiter, limErr := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimitRequests, cfg.RateLimitWindow)
		if limErr != nil {
			zapLogger.Error("failed to configure rate limiter", zap.Error(limErr))
			return limErr
		}
		defer func() { err = multierr.Append(err, redisLimiter.Close()) }()

		if pingErr := redisLimiter.Ping(ctx); pingErr != nil {
			zapLogger.Warn("redis unreachable, rate limiting fails open", zap.Error(pingErr))
		}
		limiter = redisLimiter
		zapLogger.Info("Rate limiting enabled",
			zap.Int("requests", cfg.RateLimitRequests),
			zap.Duration("window", cfg.RateLimitWindow))
	}

	// Create bot instance
	b, err := bot.New(cfg.Token)
	if err != nil {
		zapLogger.Error("error creating bot", zap.Error(err))
		return err
	}

	sessions := conversation.NewRegistry()
	controller := conversation.NewController(zapLogger, userRepo, handler.NewBotMessenger(b), sessions, conversation.Options{
		Platforms:     cfg.SocialPlatforms,
		Texts:         conversation.DefaultTexts(),
		InsertTimeout: cfg.InsertTimeout,
		AdminChatID:   cfg.AdminChatID,
	})

	handl := handler.NewHandler(cfg, zapLogger, controller, limiter, userRepo, schema)
	handl.Register(b)

	go controller.RunSweeper(ctx, cfg.SessionTTL, time.Minute)

	// Start web server
	go handl.StartWebServer(ctx)
	zapLogger.Info("Web server started", zap.String("address", cfg.GetServerAddress()))

	// Start bot
	zapLogger.Info("Bot started successfully")
	b.Start(ctx)

	return nil
}
