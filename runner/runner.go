// Package runner drives one pipeline run: request an export, wait for it,
// download and unpack its archives, scan the mailbox files, and hand the
// recordings to the publisher.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaultrelay/archive"
	"vaultrelay/config"
	"vaultrelay/model"
	"vaultrelay/scanner"
	"vaultrelay/state"
	"vaultrelay/stats"
	"vaultrelay/vault"
)

// Exporter is the retention-service client surface the runner needs.
type Exporter interface {
	CreateExport(ctx context.Context, req vault.ExportRequest) (*vault.Export, error)
	AwaitExport(ctx context.Context, matterID string, export *vault.Export, interval, maxWait time.Duration) (*vault.Export, error)
	Download(ctx context.Context, file vault.CloudStorageFile, destDir string) (string, error)
}

// Publisher consumes the run's recordings.
type Publisher interface {
	PublishAll(ctx context.Context, recordings []model.Recording) error
}

// Deps are the wired pipeline components.
type Deps struct {
	Exporter  Exporter
	Unpacker  *archive.Unpacker
	Scanner   *scanner.Scanner
	Publisher Publisher
	Tracker   state.Tracker
	Collector *stats.Collector
}

type Runner struct {
	cfg       config.Config
	logger    *slog.Logger
	exporter  Exporter
	unpacker  *archive.Unpacker
	scanner   *scanner.Scanner
	publisher Publisher
	tracker   state.Tracker
	collector *stats.Collector
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) (*Runner, error) {
	if deps.Exporter == nil {
		return nil, fmt.Errorf("exporter must not be nil")
	}
	if deps.Unpacker == nil {
		return nil, fmt.Errorf("unpacker must not be nil")
	}
	if deps.Scanner == nil {
		return nil, fmt.Errorf("scanner must not be nil")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("publisher must not be nil")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	collector := deps.Collector
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &Runner{
		cfg:       cfg,
		logger:    logger,
		exporter:  deps.Exporter,
		unpacker:  deps.Unpacker,
		scanner:   deps.Scanner,
		publisher: deps.Publisher,
		tracker:   deps.Tracker,
		collector: collector,
	}, nil
}

// Run executes one full export-to-ledger pass. Remote failures during export
// creation, polling, download, or publishing are fatal; container and
// archive problems only cost their own contributions.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()

	if err := os.MkdirAll(r.cfg.ExtractDir, 0o755); err != nil {
		return fmt.Errorf("create extract directory: %w", err)
	}

	windowStart := r.tracker.WindowStart()
	windowEnd := time.Now()
	if !windowStart.Before(windowEnd) {
		return fmt.Errorf("export window start %s must precede end %s", windowStart, windowEnd)
	}

	export, err := r.exporter.CreateExport(ctx, vault.ExportRequest{
		MatterID: r.cfg.MatterID,
		Name:     exportName(windowEnd),
		Accounts: []string{r.cfg.AdminEmail},
		Start:    windowStart,
		End:      windowEnd,
	})
	if err != nil {
		return err
	}

	export, err = r.exporter.AwaitExport(ctx, r.cfg.MatterID, export, r.cfg.PollInterval, r.cfg.PollTimeout)
	if err != nil {
		return err
	}

	archives, err := r.download(ctx, export)
	if err != nil {
		return err
	}

	for _, archivePath := range archives {
		r.unpacker.Unpack(archivePath)
	}

	recordings, err := r.scanAll()
	if err != nil {
		return err
	}

	if err := r.publisher.PublishAll(ctx, recordings); err != nil {
		return err
	}

	if err := r.tracker.MarkCompleted(windowEnd); err != nil {
		return fmt.Errorf("record window end: %w", err)
	}

	if r.logger != nil {
		attrs := append(r.collector.Snapshot().LogAttrs(), "duration", time.Since(started))
		r.logger.Info("run completed", attrs...)
	}
	return nil
}

func (r *Runner) download(ctx context.Context, export *vault.Export) ([]string, error) {
	if export.CloudStorageSink == nil || len(export.CloudStorageSink.Files) == 0 {
		if r.logger != nil {
			r.logger.Info("no files found in the completed export")
		}
		return nil, nil
	}

	var archives []string
	for _, file := range export.CloudStorageSink.Files {
		if !strings.HasSuffix(file.ObjectName, ".zip") {
			if r.logger != nil {
				r.logger.Info("skipping non-archive export file", "object", file.ObjectName)
			}
			r.collector.Record(stats.Event{Stage: stats.StageDownload, Type: stats.EventTypeSkipped, Detail: file.ObjectName})
			continue
		}

		path, err := r.exporter.Download(ctx, file, r.cfg.TempDir)
		if err != nil {
			r.collector.Record(stats.Event{Stage: stats.StageDownload, Type: stats.EventTypeError, Err: err})
			return nil, err
		}
		r.collector.Record(stats.Event{Stage: stats.StageDownload, Type: stats.EventTypeDownloaded, Detail: path})
		archives = append(archives, path)
	}
	return archives, nil
}

// scanAll walks the extract directory for mailbox files and scans each one.
// A container that fails to parse contributes zero recordings.
func (r *Runner) scanAll() ([]model.Recording, error) {
	containers, err := findMailboxFiles(r.cfg.ExtractDir)
	if err != nil {
		return nil, fmt.Errorf("enumerate mailbox files: %w", err)
	}

	var recordings []model.Recording
	for _, container := range containers {
		recs, err := r.scanner.Scan(container)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("failed to parse mailbox container, skipping", "container", container, "err", err)
			}
			r.collector.Record(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, Err: err})
			continue
		}
		recordings = append(recordings, recs...)
	}

	if r.logger != nil {
		r.logger.Info("scan complete", "containers", len(containers), "recordings", len(recordings))
	}
	return recordings, nil
}

func findMailboxFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == root {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".mbox") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func exportName(at time.Time) string {
	return fmt.Sprintf("Voice_Recordings_Export_%s_%s", at.Format("20060102150405"), uuid.NewString()[:8])
}
