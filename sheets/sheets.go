// Package sheets is the ledger client: it reads the column of already
// published message ids and appends one row per newly published recording.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://sheets.googleapis.com/v4"

// RowColumns is the fixed ledger schema.
var RowColumns = []string{
	"message_id", "file_name", "from_number", "to_number",
	"call_duration", "call_type", "date_time",
}

type Options struct {
	HTTPClient    *http.Client
	BaseURL       string
	SpreadsheetID string
	Tab           string
	Logger        *slog.Logger
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	spreadsheetID string
	tab           string
	logger        *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is empty")
	}
	if strings.TrimSpace(opts.Tab) == "" {
		return nil, fmt.Errorf("sheet tab name is empty")
	}
	client := &Client{
		httpClient:    opts.HTTPClient,
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		spreadsheetID: strings.TrimSpace(opts.SpreadsheetID),
		tab:           strings.TrimSpace(opts.Tab),
		logger:        opts.Logger,
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// MessageIDs fetches column A of the ledger tab as a membership set.
func (c *Client) MessageIDs(ctx context.Context) (map[string]struct{}, error) {
	rng := url.PathEscape(fmt.Sprintf("%s!A:A", c.tab))
	reqURL := fmt.Sprintf("%s/spreadsheets/%s/values/%s", c.baseURL, c.spreadsheetID, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ledger response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("read ledger: status %d: %s", resp.StatusCode, data)
	}

	var decoded struct {
		Values [][]string `json:"values"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode ledger response: %w", err)
	}

	ids := make(map[string]struct{}, len(decoded.Values))
	for _, row := range decoded.Values {
		if len(row) > 0 && row[0] != "" {
			ids[row[0]] = struct{}{}
		}
	}

	if c.logger != nil {
		c.logger.Info("fetched ledger ids", "count", len(ids))
	}
	return ids, nil
}

// Append adds one row to the ledger tab. Every cell is coerced to a
// single-line string before sending.
func (c *Client) Append(ctx context.Context, row []string) error {
	cleaned := make([]string, len(row))
	for i, cell := range row {
		cleaned[i] = sanitizeCell(cell)
	}

	payload := struct {
		Values [][]string `json:"values"`
	}{Values: [][]string{cleaned}}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode ledger row: %w", err)
	}

	rng := url.PathEscape(fmt.Sprintf("%s!A1", c.tab))
	reqURL := fmt.Sprintf("%s/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		c.baseURL, c.spreadsheetID, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("append ledger row: status %d: %s", resp.StatusCode, body)
	}

	if c.logger != nil {
		c.logger.Info("appended ledger row", "row", cleaned)
	}
	return nil
}

func sanitizeCell(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return value
}
