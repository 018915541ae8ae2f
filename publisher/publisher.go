// Package publisher deduplicates recordings against the ledger and performs
// the upload-then-append for each new one.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"vaultrelay/model"
	"vaultrelay/stats"
)

// BlobStore uploads a local artifact under a target name.
type BlobStore interface {
	Upload(ctx context.Context, localPath, name string) error
}

// Ledger is the append-only record of published recordings.
type Ledger interface {
	MessageIDs(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, row []string) error
}

type Publisher struct {
	store      BlobStore
	ledger     Ledger
	extractDir string
	dryRun     bool
	logger     *slog.Logger
	collector  *stats.Collector
}

func New(store BlobStore, ledger Ledger, extractDir string, dryRun bool, logger *slog.Logger, collector *stats.Collector) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store must not be nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger must not be nil")
	}
	if strings.TrimSpace(extractDir) == "" {
		return nil, fmt.Errorf("extract directory is empty")
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &Publisher{
		store:      store,
		ledger:     ledger,
		extractDir: extractDir,
		dryRun:     dryRun,
		logger:     logger,
		collector:  collector,
	}, nil
}

// PublishAll fetches the set of already-published ids once, then walks the
// recordings in input order, skipping known ids and upload+appending the
// rest. Each recording is published independently; a remote failure aborts
// the remaining batch, and the next run's dedup makes the retry safe.
func (p *Publisher) PublishAll(ctx context.Context, recordings []model.Recording) error {
	if len(recordings) == 0 {
		if p.logger != nil {
			p.logger.Info("no recordings to publish")
		}
		return nil
	}

	existing, err := p.ledger.MessageIDs(ctx)
	if err != nil {
		return fmt.Errorf("fetch ledger ids: %w", err)
	}

	for _, rec := range recordings {
		if _, ok := existing[rec.MessageID]; ok {
			if p.logger != nil {
				p.logger.Info("recording already exists, skipping", "messageID", rec.MessageID)
			}
			p.collector.Record(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypeDuplicate, MessageID: rec.MessageID})
			continue
		}

		if p.dryRun {
			if p.logger != nil {
				p.logger.Info("dry-run publish", "messageID", rec.MessageID, "file", rec.FileName)
			}
			p.collector.Record(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypeDryRunUpload, MessageID: rec.MessageID})
			continue
		}

		localPath := filepath.Join(p.extractDir, rec.FileName)
		if err := p.store.Upload(ctx, localPath, rec.FileName); err != nil {
			p.collector.Record(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypeError, MessageID: rec.MessageID, Err: err})
			return fmt.Errorf("upload %s: %w", rec.MessageID, err)
		}

		if err := p.ledger.Append(ctx, LedgerRow(rec)); err != nil {
			p.collector.Record(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypeError, MessageID: rec.MessageID, Err: err})
			return fmt.Errorf("append ledger row for %s: %w", rec.MessageID, err)
		}

		p.collector.Record(stats.Event{Stage: stats.StagePublish, Type: stats.EventTypeUploaded, MessageID: rec.MessageID})
		if p.logger != nil {
			p.logger.Info("published recording", "messageID", rec.MessageID, "file", rec.FileName)
		}
	}

	return nil
}

// LedgerRow renders one recording as the fixed 7-column ledger row. A
// missing duration becomes "Unknown".
func LedgerRow(rec model.Recording) []string {
	duration := rec.Duration
	if duration == "" {
		duration = "Unknown"
	}
	return []string{
		rec.MessageID,
		rec.FileName,
		rec.FromNumber,
		rec.ToNumber,
		duration,
		string(rec.CallType),
		rec.DateTime,
	}
}
