package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"vaultrelay/archive"
	"vaultrelay/auth"
	"vaultrelay/config"
	"vaultrelay/drive"
	"vaultrelay/publisher"
	"vaultrelay/runner"
	"vaultrelay/scanner"
	"vaultrelay/sheets"
	"vaultrelay/state"
	"vaultrelay/stats"
	"vaultrelay/vault"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaultrelay",
		Short: "Relay call recordings from retention-service exports to a blob store and ledger sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load() // loads .env when present

			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting vaultrelay", "matter", cfg.MatterID, "tempDir", cfg.TempDir, "dryRun", cfg.DryRun)

			return run(cmd.Context(), cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	rootCmd.AddCommand(scanCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	httpClient, err := auth.NewClient(ctx, cfg.ServiceAccountJSON, cfg.AdminEmail)
	if err != nil {
		return err
	}

	collector := stats.NewCollector()

	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return fmt.Errorf("state tracker: %w", err)
	}

	unpacker, err := archive.New(cfg.ExtractDir, logger, collector)
	if err != nil {
		return fmt.Errorf("archive.New: %w", err)
	}

	scn, err := scanner.New(cfg.ExtractDir, logger, collector)
	if err != nil {
		return fmt.Errorf("scanner.New: %w", err)
	}

	vaultClient := vault.New(vault.Options{HTTPClient: httpClient, Logger: logger})

	driveClient, err := drive.New(drive.Options{HTTPClient: httpClient, FolderID: cfg.DriveFolderID, Logger: logger})
	if err != nil {
		return fmt.Errorf("drive.New: %w", err)
	}

	sheetsClient, err := sheets.New(sheets.Options{
		HTTPClient:    httpClient,
		SpreadsheetID: cfg.SpreadsheetID,
		Tab:           cfg.SheetTab,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("sheets.New: %w", err)
	}

	pub, err := publisher.New(driveClient, sheetsClient, cfg.ExtractDir, cfg.DryRun, logger, collector)
	if err != nil {
		return fmt.Errorf("publisher.New: %w", err)
	}

	r, err := runner.New(cfg, logger, runner.Deps{
		Exporter:  vaultClient,
		Unpacker:  unpacker,
		Scanner:   scn,
		Publisher: pub,
		Tracker:   tracker,
		Collector: collector,
	})
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	return r.Run(ctx)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("vaultrelay-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
