package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLookback is how far back the first run reaches when no prior state
// exists.
const DefaultLookback = 30 * 24 * time.Hour

// WindowOverlap is subtracted from the recorded end time so consecutive runs
// overlap slightly; the ledger dedup absorbs the duplicates.
const WindowOverlap = 30 * time.Minute

// Tracker remembers where the previous successful export window ended, so the
// next run can start there.
type Tracker interface {
	WindowStart() time.Time
	MarkCompleted(end time.Time) error
}

type fileRecord struct {
	LastExportEnd time.Time `json:"last_export_end"`
}

// FileTracker persists the window boundary as a small JSON file in the state
// directory.
type FileTracker struct {
	path    string
	persist bool
	last    time.Time
}

func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		path:    filepath.Join(stateDir, "last_export.json"),
		persist: persist,
	}

	if err := tracker.load(); err != nil {
		return nil, err
	}

	return tracker, nil
}

func (f *FileTracker) load() error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}

	f.last = record.LastExportEnd
	return nil
}

func (f *FileTracker) WindowStart() time.Time {
	if f.last.IsZero() {
		return time.Now().Add(-DefaultLookback)
	}
	return f.last
}

// MarkCompleted records the end of a successful run, pulled back by
// WindowOverlap.
func (f *FileTracker) MarkCompleted(end time.Time) error {
	f.last = end.Add(-WindowOverlap)

	if !f.persist {
		return nil
	}

	data, err := json.Marshal(fileRecord{LastExportEnd: f.last})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}
