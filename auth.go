package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drivevfs/internal/auth"
	"github.com/tonimelisma/drivevfs/internal/pathindex"
	"github.com/tonimelisma/drivevfs/internal/vfs"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Google Drive using the device code flow",
		Args:  cobra.NoArgs,
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authentication token and clear the path index",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd.ErrOrStderr())
	stderr := cmd.ErrOrStderr()

	logger.Info("login started", "token_file", resolvedCfg.TokenFile)

	cfg := auth.OAuthConfig(resolvedCfg.ClientID, resolvedCfg.ClientSecret)

	_, err := auth.Login(cmd.Context(), cfg, resolvedCfg.TokenFile, func(da auth.DeviceAuth) {
		// Device code prompts are shown even with --quiet.
		fmt.Fprintf(stderr, "To sign in, visit: %s\n", da.VerificationURI)
		fmt.Fprintf(stderr, "Enter code: %s\n", da.UserCode)
	}, logger)
	if err != nil {
		return err
	}

	statusf(stderr, "Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd.ErrOrStderr())

	if err := auth.Logout(resolvedCfg.TokenFile, logger); err != nil {
		return err
	}

	if err := clearPathIndex(cmd.Context(), resolvedCfg.PathIndex, logger); err != nil {
		return err
	}

	statusf(cmd.ErrOrStderr(), "Logged out.\n")

	return nil
}

// clearPathIndex empties a persistent path index so the next account does
// not resolve paths to the previous account's object IDs. A missing index
// file is left missing.
func clearPathIndex(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	idx, err := pathindex.Open(ctx, path, vfs.RootID, logger)
	if err != nil {
		return err
	}

	clearErr := idx.Clear(ctx)
	closeErr := idx.Close()

	if err := errors.Join(clearErr, closeErr); err != nil {
		return err
	}

	logger.Info("path index cleared", slog.String("path", path))

	return nil
}
