package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/storefront-discount-service/internal/commerceapi"
	"github.com/fairyhunter13/storefront-discount-service/internal/config"
	"github.com/fairyhunter13/storefront-discount-service/internal/discount"
	"github.com/fairyhunter13/storefront-discount-service/internal/handler"
	"github.com/fairyhunter13/storefront-discount-service/internal/notification"
	"github.com/fairyhunter13/storefront-discount-service/internal/region"
	"github.com/fairyhunter13/storefront-discount-service/internal/repository"
	"github.com/fairyhunter13/storefront-discount-service/internal/service"
	"github.com/fairyhunter13/storefront-discount-service/internal/storefront"
	"github.com/fairyhunter13/storefront-discount-service/internal/validator"
	"github.com/fairyhunter13/storefront-discount-service/pkg/database"
)

// commerceBackend is what the discount flow needs from either backend mode.
type commerceBackend interface {
	discount.Backend
	storefront.CartInterface
}

func main() {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	threshold, err := cfg.Discount.Threshold()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid discount configuration")
	}

	ctx := context.Background()

	// Commerce backend: the local Postgres store or a remote store API.
	var (
		backend commerceBackend
		pool    *pgxpool.Pool
		pinger  handler.Pinger
	)
	switch cfg.Backend.Mode {
	case config.BackendPostgres:
		pool, err = database.NewPool(ctx, cfg.DB.DSN(), 5)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		cartRepo := repository.NewCartRepository(pool)
		promotionRepo := repository.NewPromotionRepository(pool)
		backend = service.NewCommerceService(pool, cartRepo, promotionRepo)
		pinger = pool
	case config.BackendHTTP:
		backend = commerceapi.NewClient(commerceapi.Config{
			BaseURL:        cfg.Backend.URL,
			PublishableKey: cfg.Backend.PublishableKey,
			Timeout:        cfg.Backend.RequestTimeout(),
			MaxRetries:     cfg.Backend.MaxRetries,
		})
	default:
		log.Fatal().Str("mode", cfg.Backend.Mode).Msg("unknown BACKEND_MODE")
	}
	log.Info().Str("mode", cfg.Backend.Mode).Msg("commerce backend configured")

	// Discount flow
	engine := discount.NewEngine(backend, discount.Config{
		ReplaceThreshold: threshold,
		PendingKey:       cfg.Discount.PendingMetadataKey,
	})
	renderer := notification.NewRenderer(cfg.Discount.BannerAutoDismiss(), nil)
	flow := storefront.NewFlow(engine, backend, renderer, cfg.Backend.RequestTimeout())

	sessions := storefront.NewRegistry(cfg.Session.IdleTimeout())
	if err := sessions.Start(cfg.Session.SweepSpec); err != nil {
		log.Fatal().Err(err).Msg("failed to start session sweeper")
	}

	regions := region.NewResolver(cfg.Region.Default, cfg.Region.CountryMap)

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Storefront Discount Service",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit (explicit, prevents large payloads)
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	validate := validator.New()

	healthHandler := handler.NewHealthHandler(cfg.Backend.Mode, pinger, sessions)
	app.Get("/health", healthHandler.Check)

	api := app.Group("/api", handler.SessionMiddleware(sessions, handler.SessionConfig{
		Cookie: cfg.Session.Cookie,
		MaxAge: cfg.Session.IdleTimeout(),
	}))

	discountHandler := handler.NewDiscountHandler(flow, sessions, validate, regions, cfg.Region.CountryHeader)
	api.Get("/discount", discountHandler.GetState)
	api.Delete("/discount", discountHandler.Reset)
	api.Post("/discount/url", discountHandler.HandlePageURL)
	api.Post("/discount/apply", discountHandler.Apply)
	api.Post("/discount/retry", discountHandler.Retry)
	api.Post("/discount/dismiss", discountHandler.Dismiss)
	api.Post("/discount/error/clear", discountHandler.ClearError)
	api.Post("/discount/comparison/keep", discountHandler.KeepCurrent)
	api.Post("/discount/comparison/apply", discountHandler.ApplyNew)

	cartHandler := handler.NewCartHandler(flow, validate, regions, cfg.Region.CountryHeader)
	api.Post("/cart/line-items", cartHandler.AddLineItem)

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	sessions.Stop()
	log.Info().Msg("session sweeper stopped")

	// Close database pool AFTER server shutdown (even if shutdown timed out)
	if pool != nil {
		log.Info().Msg("closing database connections...")
		pool.Close()
		log.Info().Msg("database connections closed")
	}
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
