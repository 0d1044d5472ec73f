package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivevfs/internal/auth"
	"github.com/tonimelisma/drivevfs/internal/config"
	"github.com/tonimelisma/drivevfs/internal/driveapi"
	"github.com/tonimelisma/drivevfs/internal/pathindex"
	"github.com/tonimelisma/drivevfs/internal/vfs"
)

const (
	// dialKeepAlive matches net/http's default transport.
	dialKeepAlive = 30 * time.Second
	indexDirPerms = 0o700
)

// Session holds the filesystem for one command and the resources it was
// built from.
type Session struct {
	FS      *vfs.FS
	Metrics *metrics.Set
	Logger  *slog.Logger

	closers []func() error
}

// NewSession builds the credential cache, Drive client, path store, and
// filesystem described by resolvedCfg.
func NewSession(ctx context.Context, cmd *cobra.Command) (*Session, error) {
	logger := buildLogger(cmd.ErrOrStderr())

	provider, err := credentialProvider(ctx, cmd, logger)
	if err != nil {
		return nil, err
	}

	set := metrics.NewSet()
	creds := auth.NewCache(provider, logger)

	client := driveapi.NewClient(driveapi.Options{
		BaseURL:     resolvedCfg.APIBaseURL,
		UploadURL:   resolvedCfg.UploadBaseURL,
		HTTP:        newHTTPClient(resolvedCfg.ConnectTimeout),
		Credentials: creds,
		Logger:      logger,
		UserAgent:   resolvedCfg.UserAgent,
		Metrics:     set,
	})

	s := &Session{Metrics: set, Logger: logger}

	var paths vfs.PathStore

	if resolvedCfg.PathIndex != "" {
		if err := os.MkdirAll(filepath.Dir(resolvedCfg.PathIndex), indexDirPerms); err != nil {
			return nil, fmt.Errorf("creating path index directory: %w", err)
		}

		idx, err := pathindex.Open(ctx, resolvedCfg.PathIndex, vfs.RootID, logger)
		if err != nil {
			return nil, err
		}

		s.closers = append(s.closers, idx.Close)
		paths = idx
	}

	s.FS = vfs.New(client, vfs.Options{
		Credentials:      creds,
		CacheLifetime:    resolvedCfg.CacheLifetime,
		Paths:            paths,
		WriteBufferLimit: resolvedCfg.WriteBufferLimit,
		Metrics:          set,
		Logger:           logger,
	})

	logger.Debug("session ready",
		slog.String("api", resolvedCfg.APIBaseURL),
		slog.Duration("cache_lifetime", resolvedCfg.CacheLifetime),
		slog.Bool("persistent_paths", resolvedCfg.PathIndex != ""),
	)

	return s, nil
}

// Close releases the session's resources and, with --metrics, prints the
// counters gathered during the command.
func (s *Session) Close(cmd *cobra.Command) {
	if flagMetrics {
		s.Metrics.WritePrometheus(cmd.ErrOrStderr())
	}

	for _, c := range s.closers {
		if err := c(); err != nil {
			s.Logger.Warn("closing session resource", slog.String("error", err.Error()))
		}
	}
}

// credentialProvider picks where bearer tokens come from: a static token in
// the environment, the saved login, or an interactive prompt.
func credentialProvider(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (auth.Provider, error) {
	if resolvedCfg.AccessToken != "" {
		logger.Debug("using access token from environment")
		return auth.StaticToken(resolvedCfg.AccessToken), nil
	}

	oauthCfg := auth.OAuthConfig(resolvedCfg.ClientID, resolvedCfg.ClientSecret)

	ts, err := auth.TokenSourceFromFile(ctx, resolvedCfg.TokenFile, oauthCfg, logger)
	if err == nil {
		return auth.FromTokenSource(ts), nil
	}

	if !errors.Is(err, auth.ErrNotLoggedIn) {
		return nil, err
	}

	if in, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(in) {
		logger.Debug("no saved token, prompting for one")
		return auth.PromptProvider(in, cmd.ErrOrStderr()), nil
	}

	return nil, fmt.Errorf("not logged in: run 'drivevfs login' or set %s", config.EnvAccessToken)
}

// newHTTPClient returns a client with a bounded connect phase. There is no
// overall timeout because downloads and uploads stream for as long as needed.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: dialKeepAlive,
	}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout

	return &http.Client{Transport: transport}
}
