package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/pxr/services/ctoken/config"
	"example.com/pxr/services/ctoken/internal/cmatrix"
	"example.com/pxr/services/ctoken/internal/messaging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker to ingest queued submissions and periodically drain unsent rows to the ledger`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize dependencies shared with the API command
	deps, err := initDependencies(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	// Initialize Azure Service Bus consumer
	azureBus, err := messaging.NewAzureServiceBus(cfg.Azure)
	if err != nil {
		return err
	}
	defer azureBus.Close()

	// Start the service bus processor
	g.Go(func() error {
		log.Info().Str("queue", cfg.Azure.QueueName).Msg("Starting Azure Service Bus processor")
		return azureBus.ProcessMessages(ctx, func(ctx context.Context, msg *azservicebus.ReceivedMessage) error {
			var sub cmatrix.Submission
			if err := json.Unmarshal(msg.Body, &sub); err != nil {
				return errors.Wrap(err, "failed to decode queued submission")
			}
			return deps.ctokenService.StoreSubmission(ctx, &sub, "worker")
		})
	})

	// Start the periodic backlog drain
	g.Go(func() error {
		log.Info().Dur("interval", cfg.Worker.DrainInterval).Msg("Starting periodic ledger drain job")

		// Create a scheduler
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		// Single-flight guard: a slow drain must not overlap the next tick.
		var draining sync.Mutex
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.DrainInterval),
			gocron.NewTask(func() {
				if !draining.TryLock() {
					log.Warn().Msg("Previous drain still running, skipping this tick")
					return
				}
				defer draining.Unlock()

				if err := deps.ledgerService.DrainBacklog(ctx, cfg.Worker.BatchCount, "worker"); err != nil {
					log.Error().Err(err).Msg("Failed to drain unsent rows to the ledger")
				}
			}),
		)
		if err != nil {
			return err
		}

		// Start the scheduler
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
