// Package vault is the client for the records-retention export service: it
// creates export jobs, waits for them to complete, and downloads their
// output archives.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBaseURL    = "https://vault.googleapis.com/v1"
	defaultStorageURL = "https://storage.googleapis.com"
)

const (
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

type Options struct {
	HTTPClient *http.Client
	// BaseURL and StorageURL default to the production endpoints; tests
	// point them at an httptest server.
	BaseURL    string
	StorageURL string
	Logger     *slog.Logger
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	storageURL string
	logger     *slog.Logger
}

func New(opts Options) *Client {
	client := &Client{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		storageURL: strings.TrimSuffix(opts.StorageURL, "/"),
		logger:     opts.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.storageURL == "" {
		client.storageURL = defaultStorageURL
	}
	return client
}

// ExportRequest describes one export job: a time window over the accounts of
// a retention matter, producing mbox output.
type ExportRequest struct {
	MatterID string
	Name     string
	Accounts []string
	Start    time.Time
	End      time.Time
}

type Export struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Status           string            `json:"status"`
	CloudStorageSink *CloudStorageSink `json:"cloudStorageSink,omitempty"`
}

type CloudStorageSink struct {
	Files []CloudStorageFile `json:"files"`
}

type CloudStorageFile struct {
	BucketName string `json:"bucketName"`
	ObjectName string `json:"objectName"`
	Size       string `json:"size,omitempty"`
}

type exportPayload struct {
	Name          string        `json:"name"`
	Query         exportQuery   `json:"query"`
	ExportOptions exportOptions `json:"exportOptions"`
}

type exportQuery struct {
	Corpus       string       `json:"corpus"`
	DataScope    string       `json:"dataScope"`
	SearchMethod string       `json:"searchMethod"`
	AccountInfo  *accountInfo `json:"accountInfo,omitempty"`
	StartTime    string       `json:"startTime"`
	EndTime      string       `json:"endTime"`
}

type accountInfo struct {
	Emails []string `json:"emails"`
}

type exportOptions struct {
	VoiceOptions voiceOptions `json:"voiceOptions"`
}

type voiceOptions struct {
	ExportFormat string `json:"exportFormat"`
}

// CreateExport submits a new export job for the voice corpus. The remote
// service completes it asynchronously; see AwaitExport.
func (c *Client) CreateExport(ctx context.Context, req ExportRequest) (*Export, error) {
	if req.MatterID == "" {
		return nil, fmt.Errorf("matter id is empty")
	}
	if !req.Start.Before(req.End) {
		return nil, fmt.Errorf("export window start %s must precede end %s", req.Start, req.End)
	}

	payload := exportPayload{
		Name: req.Name,
		Query: exportQuery{
			Corpus:       "VOICE",
			DataScope:    "ALL_DATA",
			SearchMethod: "ACCOUNT",
			AccountInfo:  &accountInfo{Emails: req.Accounts},
			StartTime:    req.Start.UTC().Format(time.RFC3339),
			EndTime:      req.End.UTC().Format(time.RFC3339),
		},
		ExportOptions: exportOptions{VoiceOptions: voiceOptions{ExportFormat: "MBOX"}},
	}

	var export Export
	url := fmt.Sprintf("%s/matters/%s/exports", c.baseURL, req.MatterID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &export); err != nil {
		return nil, fmt.Errorf("create export: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("export created", "name", export.Name, "id", export.ID, "status", export.Status)
	}
	return &export, nil
}

// GetExport fetches the current state of an export job.
func (c *Client) GetExport(ctx context.Context, matterID, exportID string) (*Export, error) {
	var export Export
	url := fmt.Sprintf("%s/matters/%s/exports/%s", c.baseURL, matterID, exportID)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &export); err != nil {
		return nil, fmt.Errorf("get export %s: %w", exportID, err)
	}
	return &export, nil
}

// AwaitExport polls until the export reaches COMPLETED, with exponential
// backoff bounded by maxWait. A FAILED export or a poll-request error stops
// the wait immediately.
func (c *Client) AwaitExport(ctx context.Context, matterID string, export *Export, interval, maxWait time.Duration) (*Export, error) {
	if export.Status == StatusCompleted {
		return export, nil
	}

	bo := backoff.NewExponentialBackOff()
	if interval > 0 {
		bo.InitialInterval = interval
	}
	bo.MaxElapsedTime = maxWait

	var completed *Export
	operation := func() error {
		current, err := c.GetExport(ctx, matterID, export.ID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.logger != nil {
			c.logger.Info("polling export", "id", export.ID, "status", current.Status)
		}
		switch current.Status {
		case StatusCompleted:
			completed = current
			return nil
		case StatusFailed:
			return backoff.Permanent(fmt.Errorf("export %s failed", export.ID))
		default:
			return fmt.Errorf("export %s not complete: %s", export.ID, current.Status)
		}
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("await export: %w", err)
	}
	return completed, nil
}

// Download streams one export output object into destDir and returns the
// local path.
func (c *Client) Download(ctx context.Context, file CloudStorageFile, destDir string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s", c.storageURL, file.BucketName, file.ObjectName)
	if c.logger != nil {
		c.logger.Info("downloading export file", "url", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", file.ObjectName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("download %s: status %d: %s", file.ObjectName, resp.StatusCode, body)
	}

	destPath := filepath.Join(destDir, path.Base(file.ObjectName))
	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", destPath, err)
	}

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", destPath, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", destPath, err)
	}

	if c.logger != nil {
		c.logger.Info("download completed", "file", destPath, "bytes", written)
	}
	return destPath, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
