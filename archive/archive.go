// Package archive expands downloaded export archives into the shared
// extraction directory, flattening one level of archive-in-archive nesting.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"vaultrelay/stats"
)

// nestedSuffix marks a mailbox archive packed inside the top-level export
// archive.
const nestedSuffix = ".mbox.zip"

type Unpacker struct {
	extractDir string
	logger     *slog.Logger
	collector  *stats.Collector
}

func New(extractDir string, logger *slog.Logger, collector *stats.Collector) (*Unpacker, error) {
	if strings.TrimSpace(extractDir) == "" {
		return nil, fmt.Errorf("extract directory is empty")
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &Unpacker{
		extractDir: extractDir,
		logger:     logger,
		collector:  collector,
	}, nil
}

// Unpack expands the archive at archivePath into a private scratch directory,
// then re-extracts every nested mailbox archive directly into the extract
// directory. Extraction failure is non-fatal: it is logged with directory
// diagnostics and the archive simply contributes nothing. The scratch
// directory is removed in every case.
func (u *Unpacker) Unpack(archivePath string) {
	scratch := filepath.Join(u.extractDir, "scratch-"+uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		u.fail(archivePath, fmt.Errorf("create scratch directory: %w", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil && u.logger != nil {
			u.logger.Warn("failed to remove scratch directory", "dir", scratch, "err", err)
		}
	}()

	if u.logger != nil {
		u.logger.Info("extracting archive", "archive", archivePath, "scratch", scratch)
	}

	if err := u.extractZip(archivePath, scratch, true); err != nil {
		u.fail(archivePath, err)
		return
	}

	err := filepath.WalkDir(scratch, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), nestedSuffix) {
			return nil
		}
		if u.logger != nil {
			u.logger.Info("found nested mailbox archive", "name", d.Name())
		}
		return u.extractZip(path, u.extractDir, false)
	})
	if err != nil {
		u.fail(archivePath, fmt.Errorf("expand nested archives: %w", err))
	}
}

// extractZip unpacks src into dest. With audit set, every entry name and
// size is logged.
func (u *Unpacker) extractZip(src, dest string, audit bool) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", src, err)
	}
	defer reader.Close()

	if audit && u.logger != nil {
		u.logger.Info("archive contents", "archive", src, "entries", len(reader.File))
		for i, entry := range reader.File {
			u.logger.Info("archive entry", "index", i+1, "name", entry.Name, "size", entry.UncompressedSize64)
		}
	}

	for _, entry := range reader.File {
		if err := u.extractEntry(entry, dest); err != nil {
			return fmt.Errorf("extract %s: %w", entry.Name, err)
		}
	}

	return nil
}

func (u *Unpacker) extractEntry(entry *zip.File, dest string) error {
	target := filepath.Join(dest, filepath.Clean(entry.Name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("entry path escapes destination: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

// fail logs the failure with a listing of what made it into the extract
// directory, then lets the caller carry on with nothing extracted.
func (u *Unpacker) fail(archivePath string, err error) {
	u.collector.Record(stats.Event{Stage: stats.StageUnpack, Type: stats.EventTypeError, Err: err})
	if u.logger == nil {
		return
	}
	u.logger.Error("archive extraction failed", "archive", archivePath, "err", err)

	entries, listErr := os.ReadDir(u.extractDir)
	if listErr != nil {
		u.logger.Error("could not read extract directory", "dir", u.extractDir, "err", listErr)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	u.logger.Info("extract directory contents", "dir", u.extractDir, "files", names)
}
