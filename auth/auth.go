// Package auth turns the service-account credential blob into an authorized
// HTTP client. Token acquisition itself is delegated to the oauth2 library;
// nothing else in the pipeline touches credentials.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes covers every remote collaborator: export service, export blob
// download, blob-store upload, ledger read/append.
var Scopes = []string{
	"https://www.googleapis.com/auth/ediscovery",
	"https://www.googleapis.com/auth/devstorage.read_only",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/spreadsheets",
}

type Credentials struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
}

// ParseCredentials validates the credential blob without minting a token, so
// configuration errors surface before any network call.
func ParseCredentials(blob []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(blob, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse service account credentials: %w", err)
	}
	if creds.Type != "service_account" {
		return Credentials{}, fmt.Errorf("credential blob is not a service account key (type %q)", creds.Type)
	}
	if creds.ClientEmail == "" {
		return Credentials{}, fmt.Errorf("credential blob missing client_email")
	}
	return creds, nil
}

// NewClient builds an HTTP client whose requests carry tokens for the
// service account, impersonating subject when one is given.
func NewClient(ctx context.Context, blob []byte, subject string) (*http.Client, error) {
	cfg, err := google.JWTConfigFromJSON(blob, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("load service account key: %w", err)
	}
	if subject != "" {
		cfg.Subject = subject
	}
	return oauth2.NewClient(ctx, cfg.TokenSource(ctx)), nil
}
