// Command reaper deletes expired pastes once and exits. Inside AWS Lambda it
// serves scheduled (EventBridge) invocations instead, one sweep per event.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/johnwmail/pastelite/config"
	"github.com/johnwmail/pastelite/internal/clock"
	"github.com/johnwmail/pastelite/internal/logging"
	"github.com/johnwmail/pastelite/internal/reaper"
	"github.com/johnwmail/pastelite/internal/services"
	"github.com/johnwmail/pastelite/internal/slug"
	"github.com/johnwmail/pastelite/storage"
)

// SweepResult is returned to the Lambda runtime after each scheduled run
type SweepResult struct {
	Deleted int64 `json:"deleted"`
}

func scheduledHandler(r *reaper.Reaper, logger *slog.Logger) func(context.Context, events.CloudWatchEvent) (SweepResult, error) {
	return func(ctx context.Context, event events.CloudWatchEvent) (SweepResult, error) {
		logger.Debug("Scheduled sweep", "event_id", event.ID, "source", event.Source)
		removed, err := r.RunOnce(ctx)
		if err != nil {
			return SweepResult{}, err
		}
		return SweepResult{Deleted: removed}, nil
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run performs the sweep and returns the process exit code
func run(args []string) int {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 2
	}

	logger, closer, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 1
	}
	defer closer.Close()

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "type", cfg.StorageType, "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()

	svc := services.NewPasteService(store, slug.New(cfg.IDLength), logger, services.Options{
		OperationTimeout: cfg.OperationTimeout,
	})
	r := reaper.New(svc, clock.Real{}, 0, logger)

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(scheduledHandler(r, logger))
		return 0
	}

	removed, err := r.RunOnce(ctx)
	if err != nil {
		return 1
	}
	fmt.Printf("deleted %d expired pastes\n", removed)
	return 0
}
