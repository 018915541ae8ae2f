package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vaultrelay/archive"
	"vaultrelay/scanner"
	"vaultrelay/stats"
)

var scanExtractDir string

// scanCmd inspects local archives or mailbox files without touching any
// remote service. Useful for checking what an export contains before a real
// run, or for re-scanning artifacts left over from a failed one.
var scanCmd = &cobra.Command{
	Use:   "scan [archive.zip|file.mbox ...]",
	Short: "Unpack and scan local export artifacts without publishing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
		collector := stats.NewCollector()

		if err := os.MkdirAll(scanExtractDir, 0o755); err != nil {
			return fmt.Errorf("create extract directory: %w", err)
		}

		unpacker, err := archive.New(scanExtractDir, logger, collector)
		if err != nil {
			return err
		}
		scn, err := scanner.New(scanExtractDir, logger, collector)
		if err != nil {
			return err
		}

		containers := make([]string, 0, len(args))
		for _, arg := range args {
			switch {
			case strings.HasSuffix(arg, ".zip"):
				unpacker.Unpack(arg)
			case strings.HasSuffix(arg, ".mbox"):
				containers = append(containers, arg)
			default:
				return fmt.Errorf("unsupported input %q: expected .zip or .mbox", arg)
			}
		}

		// Unpacked archives drop their mailbox files into the extract
		// directory; pick those up alongside the ones named directly.
		err = filepath.WalkDir(scanExtractDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".mbox") {
				containers = append(containers, path)
			}
			return nil
		})
		if err != nil {
			return err
		}

		total := 0
		for _, container := range containers {
			recordings, err := scn.Scan(container)
			if err != nil {
				fmt.Printf("SKIP %s: %v\n", container, err)
				continue
			}
			for _, rec := range recordings {
				total++
				duration := rec.Duration
				if duration == "" {
					duration = "Unknown"
				}
				fmt.Printf("%s  %s  %s  %s\n", rec.CallType, duration, rec.FileName, rec.MessageID)
			}
		}

		summary := collector.Snapshot()
		fmt.Printf("\nScanned %d messages across %d containers, %d recordings extracted, %d errors\n",
			summary.Scanned, len(containers), total, summary.Errors)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanExtractDir, "extract-dir", "./temp/extracted", "Directory for extracted mailbox files and audio artifacts")
}
