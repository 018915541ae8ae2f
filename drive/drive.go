// Package drive uploads recording artifacts into a blob-store folder.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.googleapis.com/upload/drive/v3"

type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	FolderID   string
	Logger     *slog.Logger
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	folderID   string
	logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.FolderID) == "" {
		return nil, fmt.Errorf("drive folder id is empty")
	}
	client := &Client{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		folderID:   opts.FolderID,
		logger:     opts.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// Upload pushes the local file into the configured folder under name, as a
// single multipart-related request (metadata part + media part).
func (c *Client) Upload(ctx context.Context, localPath, name string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	if c.logger != nil {
		c.logger.Info("starting upload", "name", name)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return fmt.Errorf("create metadata part: %w", err)
	}
	metadata := map[string]any{
		"name":    name,
		"parents": []string{c.folderID},
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	mediaPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"audio/wav"},
	})
	if err != nil {
		return fmt.Errorf("create media part: %w", err)
	}
	if _, err := io.Copy(mediaPart, file); err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize upload body: %w", err)
	}

	url := c.baseURL + "/files?uploadType=multipart&supportsAllDrives=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upload %s: status %d: %s", name, resp.StatusCode, data)
	}

	if c.logger != nil {
		c.logger.Info("uploaded", "name", name)
	}
	return nil
}
