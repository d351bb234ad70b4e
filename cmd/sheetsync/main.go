// Package main provides the CLI entry point for sheetsync.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetsync/internal/client"
	"github.com/JonMunkholm/sheetsync/internal/config"
	"github.com/JonMunkholm/sheetsync/internal/discover"
	"github.com/JonMunkholm/sheetsync/internal/logging"
	"github.com/JonMunkholm/sheetsync/internal/sink"
	"github.com/JonMunkholm/sheetsync/internal/state"
	"github.com/JonMunkholm/sheetsync/internal/status"
	"github.com/JonMunkholm/sheetsync/internal/syncer"
)

var (
	configPath   string
	statePath    string
	discoverMode bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sheetsync",
		Short: "Extract spreadsheet data into typed record streams",
		Long: `sheetsync pulls configured ranges from a Google spreadsheet, infers a
record schema per sheet, and emits typed records to a Singer-compatible
stream or straight into PostgreSQL, tracking incremental progress
between runs.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "Path to the spreadsheet config JSON")
	rootCmd.Flags().StringVarP(&statePath, "state", "s", "state.json", "Path to the sync state file (unused with the postgres sink)")
	rootCmd.Flags().BoolVar(&discoverMode, "discover", false, "Print the stream catalog and exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	settings, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}

	logging.Setup(settings.Logging.Level, settings.Logging.Format)

	spreadsheet, err := config.LoadSpreadsheet(configPath)
	if err != nil {
		slog.Error("failed to load spreadsheet config", "path", configPath, "error", err)
		return err
	}

	logger, runID := logging.NewRunLogger()
	logger.Info("configuration loaded",
		"spreadsheet_id", spreadsheet.SpreadsheetID,
		"sheets", len(spreadsheet.Sheets),
		"batch_size", spreadsheet.BatchSize,
		"sink", settings.Sink.Kind,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient, err := client.New(ctx, client.Options{
		KeyfilePath:    spreadsheet.KeyfilePath,
		UserAgent:      spreadsheet.UserAgent,
		RequestTimeout: settings.Client.RequestTimeout,
		RetryElapsed:   settings.Client.RetryElapsed,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to build API client", "error", err)
		return err
	}

	if discoverMode {
		d := &discover.Discoverer{Client: httpClient, Config: spreadsheet, Logger: logger}
		catalog, err := d.Discover(ctx)
		if err != nil {
			logger.Error("discovery failed", "error", err)
			return err
		}
		return catalog.Write(os.Stdout)
	}

	var out sink.Sink
	store := state.Store(state.NewFileStore(statePath))
	switch settings.Sink.Kind {
	case "postgres":
		pg, err := sink.NewPostgres(ctx, sink.PostgresOptions{
			DatabaseURL: settings.Sink.DatabaseURL,
			TablePrefix: settings.Sink.TablePrefix,
			MaxConns:    settings.Sink.MaxConns,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to connect postgres sink", "error", err)
			return err
		}
		defer func() {
			if err := pg.Close(); err != nil {
				logger.Error("failed to close postgres sink", "error", err)
			}
		}()
		out = pg
		store = pg.StateStore()
	default:
		out = sink.NewSinger(os.Stdout)
	}

	tracker := status.NewTracker(runID)
	if settings.Status.Addr != "" {
		srv := status.NewServer(settings.Status.Addr, tracker, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	controller := &syncer.Controller{
		Client:  httpClient,
		Sink:    out,
		Store:   store,
		Config:  spreadsheet,
		Tracker: tracker,
		Logger:  logger,
	}

	if err := controller.Run(ctx); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}
