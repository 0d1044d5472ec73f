package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v2"

	"github.com/tonimelisma/drivevfs/internal/tokenfile"
)

// ErrNotLoggedIn is returned when no saved token exists.
var ErrNotLoggedIn = errors.New("auth: not logged in")

// ErrNoClientID is returned by Login when no oauth client is configured.
var ErrNoClientID = errors.New("auth: no oauth client_id configured")

// Scopes requested at login. Full drive scope is needed for uploads over
// files the application did not create.
var Scopes = []string{drive.DriveScope}

// OAuthConfig builds the oauth2 configuration for Google's endpoint.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// StaticToken returns a provider that always yields tok.
func StaticToken(tok string) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		return tok, nil
	})
}

// FromTokenSource adapts an oauth2.TokenSource to Provider.
func FromTokenSource(src oauth2.TokenSource) Provider {
	return ProviderFunc(func(context.Context) (string, error) {
		t, err := src.Token()
		if err != nil {
			return "", fmt.Errorf("auth: obtaining oauth2 token: %w", err)
		}

		return t.AccessToken, nil
	})
}

// PromptProvider asks for an access token on w and reads one line from r.
// Used when no oauth client is configured: the user pastes a token minted
// elsewhere (for example in the OAuth 2.0 Playground).
func PromptProvider(r io.Reader, w io.Writer) Provider {
	var mu sync.Mutex

	br := bufio.NewReader(r)

	return ProviderFunc(func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if err := ctx.Err(); err != nil {
			return "", err
		}

		fmt.Fprintf(w, "To generate a token, authorize the %s scope in the OAuth 2.0 Playground.\n", drive.DriveScope)
		fmt.Fprint(w, "Please enter access token: ")

		line, err := br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("auth: reading access token: %w", err)
		}

		return strings.TrimSpace(line), nil
	})
}

// TokenSourceFromFile loads the token saved at path and returns a source
// that refreshes it through cfg and writes refreshed tokens back to disk.
// Returns ErrNotLoggedIn if the file does not exist.
func TokenSourceFromFile(
	ctx context.Context, path string, cfg *oauth2.Config, logger *slog.Logger,
) (oauth2.TokenSource, error) {
	tf, err := tokenfile.Load(path)
	if err != nil {
		return nil, err
	}

	if tf == nil {
		return nil, ErrNotLoggedIn
	}

	if cfg.ClientID == "" {
		cfg.ClientID = tf.ClientID
	}

	logger.Info("loaded saved token",
		slog.String("path", path),
		slog.Time("expiry", tf.Token.Expiry),
	)

	return &persistingSource{
		src:      cfg.TokenSource(ctx, tf.Token),
		path:     path,
		clientID: cfg.ClientID,
		last:     tf.Token.AccessToken,
		logger:   logger,
	}, nil
}

// persistingSource saves the token whenever the wrapped source hands out a
// different access token than last time, which happens after a refresh.
type persistingSource struct {
	src      oauth2.TokenSource
	path     string
	clientID string
	logger   *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	t, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.AccessToken == p.last {
		return t, nil
	}

	p.last = t.AccessToken
	p.logger.Info("token refreshed", slog.Time("new_expiry", t.Expiry))

	if saveErr := tokenfile.Save(p.path, &tokenfile.File{Token: t, ClientID: p.clientID}); saveErr != nil {
		p.logger.Warn("failed to persist refreshed token",
			slog.String("path", p.path),
			slog.String("error", saveErr.Error()),
		)
	}

	return t, nil
}

// DeviceAuth holds the device code fields shown to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login runs the device code flow against cfg's endpoint, saves the token
// at path, and returns a refreshing token source.
func Login(
	ctx context.Context,
	cfg *oauth2.Config,
	path string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (oauth2.TokenSource, error) {
	if cfg.ClientID == "" {
		return nil, ErrNoClientID
	}

	logger.Info("starting device code auth flow", slog.String("path", path))

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: device auth request failed: %w", err)
	}

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("auth: device code authorization failed: %w", err)
	}

	if saveErr := tokenfile.Save(path, &tokenfile.File{Token: tok, ClientID: cfg.ClientID}); saveErr != nil {
		return nil, fmt.Errorf("auth: saving token: %w", saveErr)
	}

	logger.Info("login successful",
		slog.String("path", path),
		slog.Time("expiry", tok.Expiry),
	)

	return &persistingSource{
		src:      cfg.TokenSource(ctx, tok),
		path:     path,
		clientID: cfg.ClientID,
		last:     tok.AccessToken,
		logger:   logger,
	}, nil
}

// Logout removes the saved token. A missing token is not an error.
func Logout(path string, logger *slog.Logger) error {
	removed, err := tokenfile.Remove(path)
	if err != nil {
		return err
	}

	if !removed {
		logger.Info("logout: no token file to remove", slog.String("path", path))
		return nil
	}

	logger.Info("logout: removed token file", slog.String("path", path))

	return nil
}
