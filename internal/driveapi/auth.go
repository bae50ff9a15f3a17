package driveapi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/legnaleurc/faststart/internal/tokenfile"
)

// DeviceAuth holds the device code response fields the CLI displays to the
// user during Login.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// AuthConfig holds the OAuth2 client registration for the drive backend.
type AuthConfig struct {
	ClientID string
	Scopes   []string
	Endpoint oauth2.Endpoint
}

// Login performs the device code OAuth2 flow: request a device code,
// display it to the user, poll until authorized, persist the token, and
// return a TokenSource for use with Client.
//
// The returned TokenSource binds ctx to the underlying oauth2 token source.
// ctx must outlive the TokenSource — callers should pass a long-lived
// context (typically context.Background()) for the dispatcher's lifetime.
func Login(ctx context.Context, auth AuthConfig, tokenPath string, display func(DeviceAuth), logger *slog.Logger) (TokenSource, error) {
	cfg := oauthConfig(auth, tokenPath, nil, logger)

	logger.Info("starting device code auth flow", slog.String("path", tokenPath))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("driveapi: device auth request failed: %w", err)
	}

	display(DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("driveapi: device code authorization failed: %w", err)
	}

	if err := tokenfile.Save(tokenPath, tok, nil); err != nil {
		return nil, fmt.Errorf("driveapi: saving token: %w", err)
	}

	logger.Info("login successful", slog.String("path", tokenPath), slog.Time("expiry", tok.Expiry))

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// TokenSourceFromPath loads a saved token from the given path and returns a
// TokenSource with auto-refresh and auto-persistence via OnTokenChange.
// Returns ErrNotLoggedIn if no token file exists at the path.
func TokenSourceFromPath(ctx context.Context, auth AuthConfig, tokenPath string, logger *slog.Logger) (TokenSource, error) {
	tok, meta, err := tokenfile.Load(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	expired := !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())
	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", expired),
	)

	cfg := oauthConfig(auth, tokenPath, meta, logger)

	return &tokenBridge{src: cfg.TokenSource(ctx, tok), logger: logger}, nil
}

// Logout removes the saved token file at the given path. Returns nil if no
// token file exists (already logged out).
func Logout(tokenPath string, logger *slog.Logger) error {
	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove", slog.String("path", tokenPath))
		return nil
	}

	if err != nil {
		return fmt.Errorf("driveapi: removing token file: %w", err)
	}

	logger.Info("logout: removed token file", slog.String("path", tokenPath))

	return nil
}

// oauthConfig builds an oauth2.Config with OnTokenChange wired to persist
// refreshed tokens, so a long-running dispatcher keeps its token file
// current through silent refreshes without operator intervention. meta is
// captured by the closure so metadata is preserved across refreshes.
func oauthConfig(auth AuthConfig, tokenPath string, meta map[string]string, logger *slog.Logger) *oauth2.Config {
	return &oauth2.Config{
		ClientID: auth.ClientID,
		Scopes:   auth.Scopes,
		Endpoint: auth.Endpoint,
		OnTokenChange: func(tok *oauth2.Token) {
			logger.Info("token refreshed by oauth2 library",
				slog.String("path", tokenPath),
				slog.Time("new_expiry", tok.Expiry),
			)

			if err := tokenfile.Save(tokenPath, tok, meta); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", tokenPath),
					slog.String("error", err.Error()),
				)
			}
		},
	}
}

// tokenBridge adapts oauth2.TokenSource to driveapi.TokenSource, logging
// every token acquisition so refresh activity is visible.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("driveapi: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}
