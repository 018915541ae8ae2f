package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vaultrelay/auth"
)

// Required environment values. Credentials and remote identifiers come from
// the environment (or a .env file); operational knobs are CLI flags.
const (
	EnvServiceAccount = "GOOGLE_SERVICE_ACCOUNT_JSON"
	EnvAdminEmail     = "WORKSPACE_ADMIN_EMAIL"
	EnvMatterID       = "VAULT_MATTER_ID"
	EnvDriveFolderID  = "DRIVE_FOLDER_ID"
	EnvSpreadsheetID  = "GOOGLE_SPREADSHEET_ID"
	EnvSheetTab       = "GOOGLE_SHEET_TAB_NAME"
)

// Config captures everything a single pipeline run needs. Nothing reads
// ambient globals after this is built.
type Config struct {
	TempDir    string
	ExtractDir string
	StateDir   string
	DryRun     bool
	LogLevel   string
	LogDir     string

	PollInterval time.Duration
	PollTimeout  time.Duration

	ServiceAccountJSON []byte
	AdminEmail         string
	MatterID           string
	DriveFolderID      string
	SpreadsheetID      string
	SheetTab           string
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("temp-dir", "./temp", "Directory for downloaded archives; extracted content goes to its extracted/ subdirectory")
	flags.String("state-dir", defaultStateDir, "Directory for the last-export-window state file")
	flags.Bool("dry-run", false, "Scan and report without uploading or appending to the ledger")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (stdout only when empty)")
	flags.Duration("poll-interval", 5*time.Second, "Initial interval between export-completion polls")
	flags.Duration("poll-timeout", 10*time.Minute, "Maximum total time to wait for export completion")

	return nil
}

// LoadConfig merges parsed flags with the required environment values,
// failing fast on the first missing one.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	tempDir, err := flags.GetString("temp-dir")
	if err != nil {
		return Config{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Config{}, err
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := flags.GetDuration("poll-interval")
	if err != nil {
		return Config{}, err
	}
	pollTimeout, err := flags.GetDuration("poll-timeout")
	if err != nil {
		return Config{}, err
	}

	serviceAccount, err := requiredEnv(EnvServiceAccount)
	if err != nil {
		return Config{}, err
	}
	adminEmail, err := requiredEnv(EnvAdminEmail)
	if err != nil {
		return Config{}, err
	}
	matterID, err := requiredEnv(EnvMatterID)
	if err != nil {
		return Config{}, err
	}
	driveFolderID, err := requiredEnv(EnvDriveFolderID)
	if err != nil {
		return Config{}, err
	}
	spreadsheetID, err := requiredEnv(EnvSpreadsheetID)
	if err != nil {
		return Config{}, err
	}
	sheetTab, err := requiredEnv(EnvSheetTab)
	if err != nil {
		return Config{}, err
	}

	if stateDir == "" {
		stateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	tempDir = filepath.Clean(tempDir)
	cfg := Config{
		TempDir:            tempDir,
		ExtractDir:         filepath.Join(tempDir, "extracted"),
		StateDir:           filepath.Clean(stateDir),
		DryRun:             dryRun,
		LogLevel:           logLevel,
		LogDir:             logDir,
		PollInterval:       pollInterval,
		PollTimeout:        pollTimeout,
		ServiceAccountJSON: []byte(serviceAccount),
		AdminEmail:         adminEmail,
		MatterID:           matterID,
		DriveFolderID:      driveFolderID,
		SpreadsheetID:      spreadsheetID,
		SheetTab:           sheetTab,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	if _, err := auth.ParseCredentials(cfg.ServiceAccountJSON); err != nil {
		return fmt.Errorf("%s: %w", EnvServiceAccount, err)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive")
	}
	if cfg.PollTimeout <= 0 {
		return fmt.Errorf("--poll-timeout must be positive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func requiredEnv(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", fmt.Errorf("%s environment variable not set", key)
	}
	return value, nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vaultrelay", "state"), nil
}
