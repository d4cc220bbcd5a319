// Package googleauth obtains an authorized Google session for the
// worker. It owns the installed-app consent flow and token persistence,
// including the fallback to a user-home location when the configured
// token path is not writable.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

// Scopes are the access scopes a run needs.
var Scopes = []string{gmail.GmailSendScope, sheets.SpreadsheetsScope}

// fallbackDir under the user home receives the token when the
// configured path cannot be written.
const fallbackDir = ".sendoff"

// Session is an authorized Google session.
type Session struct {
	TokenSource oauth2.TokenSource
}

// Provider obtains an authorized session. The orchestrator depends only
// on this interface; the consent flow stays out of the worker.
type Provider interface {
	ObtainSession(ctx context.Context, credentialsPath, tokenPath string) (*Session, error)
}

// TokenWriteError reports that the token could not be written to the
// requested location and where it was written instead. The token is
// safe, but the operator must update the configured path.
type TokenWriteError struct {
	Intended string
	Actual   string
	Err      error
}

func (e *TokenWriteError) Error() string {
	return fmt.Sprintf("cannot write token to %q; wrote it to %q instead — update the token path in your configuration", e.Intended, e.Actual)
}

func (e *TokenWriteError) Unwrap() error { return e.Err }

// InstalledAppProvider implements Provider with the OAuth installed-app
// flow: token file, refresh, then an interactive browser consent
// handled by a loopback redirect server.
type InstalledAppProvider struct {
	// AuthPrompt receives the consent URL the operator must open.
	AuthPrompt func(url string)
}

// ObtainSession loads or acquires credentials and returns a session.
// A consent round-trip persists the new token; a failed write to the
// requested path is recovered via the home-dir fallback but still
// returned as a *TokenWriteError so the operator learns the real
// location.
func (p *InstalledAppProvider) ObtainSession(ctx context.Context, credentialsPath, tokenPath string) (*Session, error) {
	secrets, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("googleauth: read credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(secrets, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("googleauth: parse credentials: %w", err)
	}

	tok, err := readToken(tokenPath)
	if err == nil && usable(tok) {
		return &Session{TokenSource: conf.TokenSource(ctx, tok)}, nil
	}

	tok, err = p.consent(ctx, conf)
	if err != nil {
		return nil, err
	}
	if err := persistToken(tokenPath, tok); err != nil {
		return nil, err
	}
	return &Session{TokenSource: conf.TokenSource(ctx, tok)}, nil
}

// usable reports whether a stored token can still produce access:
// either not yet expired or refreshable.
func usable(tok *oauth2.Token) bool {
	return tok != nil && (tok.Valid() || tok.RefreshToken != "")
}

func readToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// consent runs the loopback-redirect consent flow and exchanges the
// authorization code for a token.
func (p *InstalledAppProvider) consent(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("googleauth: start redirect listener: %w", err)
	}
	defer ln.Close()

	conf.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())
	state := fmt.Sprintf("st%d", os.Getpid())

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("googleauth: consent state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("googleauth: consent denied")
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		codeCh <- code
	})}
	go srv.Serve(ln)
	defer srv.Close()

	url := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if p.AuthPrompt != nil {
		p.AuthPrompt(url)
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("googleauth: consent cancelled: %w", ctx.Err())
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("googleauth: code exchange: %w", err)
	}
	return tok, nil
}

// persistToken writes the token JSON (0600) to the requested path,
// creating parent directories. A permission failure falls back to
// ~/.sendoff/token.json and reports both locations.
func persistToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("googleauth: encode token: %w", err)
	}

	writeErr := writeFile(path, data)
	if writeErr == nil {
		return nil
	}
	if !errors.Is(writeErr, os.ErrPermission) {
		return fmt.Errorf("googleauth: write token to %q: %w", path, writeErr)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("googleauth: write token to %q: %w", path, writeErr)
	}
	fbPath := filepath.Join(home, fallbackDir, "token.json")
	if err := writeFile(fbPath, data); err != nil {
		return fmt.Errorf("googleauth: write token fallback to %q: %w", fbPath, err)
	}
	return &TokenWriteError{Intended: path, Actual: fbPath, Err: writeErr}
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
