package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/pxr/services/ctoken/config"
	"example.com/pxr/services/ctoken/internal/api"
	"example.com/pxr/services/ctoken/internal/cache"
	"example.com/pxr/services/ctoken/internal/database"
	"example.com/pxr/services/ctoken/internal/ledger"
	"example.com/pxr/services/ctoken/internal/metrics"
	"example.com/pxr/services/ctoken/internal/notifier"
	"example.com/pxr/services/ctoken/internal/repositories"
	"example.com/pxr/services/ctoken/internal/search"
	"example.com/pxr/services/ctoken/internal/services"
	"example.com/pxr/services/ctoken/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server to handle Local-CToken submissions and ledger forwarding`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize dependencies shared by both services
	deps, err := initDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	// Initialize and start the server
	server := api.NewServer(cfg, deps.ctokenService, deps.ledgerService, deps.metrics, deps.tracer)

	// Start the server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}

// dependencies groups the wiring shared by the API and worker commands.
type dependencies struct {
	db            database.DB
	redisCache    *cache.RedisCache
	ctokenService *services.CTokenService
	ledgerService *services.LedgerService
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
	timezone      *time.Location
}

func (d *dependencies) close() {
	if d.redisCache != nil {
		if err := d.redisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database connection")
		}
	}
}

func initDependencies(cfg config.Config) (*dependencies, error) {
	// Initialize database connection
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}
	gormDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return nil, err
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without batch auditing")
		elasticClient = nil
	}

	// Resolve the timezone used for outbound ledger timestamps
	timezone, err := time.LoadLocation(cfg.Ledger.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Ledger.Timezone).Msg("Invalid ledger timezone, falling back to UTC")
		timezone = time.UTC
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize outbound clients
	ledgerClient := ledger.NewClient(cfg.Ledger)
	bookNotifier := notifier.NewNotifier(cfg.BookManage)

	// Initialize services
	repo := repositories.NewRowHashRepository(gormDB)
	ctokenService := services.NewCTokenService(repo, bookNotifier, metricsCollector, tracer)
	ledgerService := services.NewLedgerService(repo, ledgerClient, redisCache, elasticClient, metricsCollector, tracer, timezone)

	return &dependencies{
		db:            db,
		redisCache:    redisCache,
		ctokenService: ctokenService,
		ledgerService: ledgerService,
		metrics:       metricsCollector,
		tracer:        tracer,
		timezone:      timezone,
	}, nil
}
