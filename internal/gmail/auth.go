package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
)

// Scopes requested for the mailbox: reading plus sending.
var Scopes = []string{gm.GmailReadonlyScope, gm.GmailSendScope}

// OAuth2Credentials is the client section of a Google Cloud Console credentials file.
type OAuth2Credentials struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

type credentialsFile struct {
	Installed *OAuth2Credentials `json:"installed,omitempty"`
	Web       *OAuth2Credentials `json:"web,omitempty"`
}

var ErrNoToken = errors.New("gmail: no cached token and no refresh token configured")

// ParseCredentials accepts either a bare client object or the
// {"installed": ...} / {"web": ...} file downloaded from the console.
func ParseCredentials(data []byte) (*OAuth2Credentials, error) {
	var direct OAuth2Credentials
	if err := json.Unmarshal(data, &direct); err == nil {
		if direct.ClientID != "" && direct.ClientSecret != "" {
			return &direct, nil
		}
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse gmail credentials: %w", err)
	}
	if file.Installed != nil {
		return file.Installed, nil
	}
	if file.Web != nil {
		return file.Web, nil
	}
	return nil, errors.New("no valid credentials found in JSON - expected 'installed' or 'web' section")
}

// OAuthConfig builds the oauth2 config for the mailbox scopes.
func OAuthConfig(creds *OAuth2Credentials) *oauth2.Config {
	redirect := "urn:ietf:wg:oauth:2.0:oob"
	if len(creds.RedirectURIs) > 0 {
		redirect = creds.RedirectURIs[0]
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// Token returns the cached token when still valid, otherwise exchanges
// refreshToken for a new one and caches it. There is no interactive flow
// here; run gmail-auth-helper once to obtain a refresh token.
func Token(ctx context.Context, cfg *oauth2.Config, tokenPath, refreshToken string) (*oauth2.Token, error) {
	cached, err := loadToken(tokenPath)
	if err == nil && cached.Valid() {
		// the token source refreshes from this once the access token expires
		if cached.RefreshToken == "" {
			cached.RefreshToken = refreshToken
		}
		return cached, nil
	}
	if refreshToken == "" && cached != nil {
		refreshToken = cached.RefreshToken
	}
	if refreshToken == "" {
		return nil, ErrNoToken
	}

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh gmail token: %w", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if tokenPath != "" {
		// cache write failures are not fatal
		_ = saveToken(tokenPath, tok)
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	if path == "" {
		return nil, os.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}
