package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"alcyxob/present-coach/internal/api"
	"alcyxob/present-coach/internal/config"
	"alcyxob/present-coach/internal/events"
	"alcyxob/present-coach/internal/jobs"
	"alcyxob/present-coach/internal/observability/logging"
	"alcyxob/present-coach/internal/repository"
	"alcyxob/present-coach/internal/repository/memory"
	"alcyxob/present-coach/internal/repository/mongo"
	"alcyxob/present-coach/internal/service"
	"alcyxob/present-coach/internal/storage"
)

// @title Present Coach Submission API
// @version 1.0
// @description Payment confirmation and signed upload URLs for rehearsal submissions.
// @host localhost:8080
// @BasePath /
func main() {
	_ = godotenv.Load()

	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info().
		Str("database", cfg.Database.Driver).
		Str("storage", cfg.Storage.Driver).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("configuration loaded")

	ctx := context.Background()

	// --- Database Connection ---
	var submissionRepo repository.SubmissionRepository
	switch cfg.Database.Driver {
	case "memory":
		log.Warn().Msg("using in-memory submission store, data is lost on restart")
		submissionRepo = memory.NewSubmissionRepository()
	default:
		dbClient, err := mongo.ConnectDB(ctx, cfg.Database.URI, cfg.Database.ConnectTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to MongoDB")
		}
		defer func() {
			log.Info().Msg("disconnecting MongoDB")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.Error().Err(err).Msg("failed to disconnect MongoDB")
			}
		}()
		appDB := dbClient.Database(cfg.Database.Name)

		// --- Ensure Indexes ---
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := mongo.EnsureSubmissionIndexes(ctx, appDB); err != nil {
				log.Error().Err(err).Msg("index creation failed")
				return
			}
			log.Info().Msg("index creation completed")
		}()

		submissionRepo = mongo.NewMongoSubmissionRepository(appDB)
	}

	// --- Initialize Storage ---
	fileStorage, err := storage.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file storage")
	}

	// --- Notifications ---
	publisher := events.New(events.Config{
		Enabled: cfg.Kafka.Enabled,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})
	defer publisher.Close()

	// --- Initialize Services ---
	submissionService := service.NewSubmissionService(submissionRepo, fileStorage, publisher,
		service.WithUploadURLExpiry(cfg.Storage.UploadURLExpiry),
		service.WithDedupeTTL(cfg.Webhook.DedupeTTL),
	)

	// --- Retention ---
	if cfg.Retention.Enabled {
		sweeper, err := jobs.NewSweeper(submissionService, cfg.Retention.Schedule, cfg.Retention.PendingPaymentTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid retention schedule")
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	// --- Initialize Gin Engine ---
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	routeOpts := api.RouteOptions{}
	if cfg.RateLimit.Enabled {
		routeOpts.RateLimit = cfg.RateLimit.Rate
	}
	if err := api.SetupRoutes(router, submissionService, routeOpts); err != nil {
		log.Fatal().Err(err).Msg("failed to set up routes")
	}

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful Shutdown ---
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		log.Error().Err(err).Msg("listen failed")
	}
	log.Info().Msg("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exiting")
}
