package stats

import (
	"sync"
)

type Stage string

const (
	StageDownload Stage = "download"
	StageUnpack   Stage = "unpack"
	StageScan     Stage = "scan"
	StagePublish  Stage = "publish"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeExtracted    EventType = "extracted"
	EventTypeDownloaded   EventType = "downloaded"
	EventTypeUploaded     EventType = "uploaded"
	EventTypeDryRunUpload EventType = "dry_run_uploaded"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeSkipped      EventType = "skipped"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Err       error
	Detail    string
}

type Summary struct {
	Scanned        int
	Extracted      int
	Downloaded     int
	Uploaded       int
	DryRunUploaded int
	Duplicates     int
	Skipped        int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"extracted", s.Extracted,
		"downloaded", s.Downloaded,
		"uploaded", s.Uploaded,
		"dryRunUploaded", s.DryRunUploaded,
		"duplicates", s.Duplicates,
		"skipped", s.Skipped,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector accumulates per-run counters. The pipeline runs sequentially, but
// the collector stays safe to share between components regardless.
type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Record(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeExtracted:
		c.summary.Extracted++
	case EventTypeDownloaded:
		c.summary.Downloaded++
	case EventTypeUploaded:
		c.summary.Uploaded++
	case EventTypeDryRunUpload:
		c.summary.DryRunUploaded++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeSkipped:
		c.summary.Skipped++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}
