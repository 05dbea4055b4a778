package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"yotoup/internal/repositories"
	"yotoup/internal/shared"
	"yotoup/internal/yoto"
)

// AuthLogin authenticates with Yoto using the OAuth2 device flow and
// persists the resulting token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	db, err := repositories.Open(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	auth := yoto.NewAuth(config.Yoto, repositories.NewTokenRepository(db))

	deviceAuth, err := auth.StartDeviceFlow(ctx)
	if err != nil {
		return err
	}

	r.writePlain("Confirm this device at: %s\n", deviceAuth.VerificationURI)
	r.writePlain("Code: %s\n", deviceAuth.UserCode)

	if !cmd.Bool("no-browser") && deviceAuth.VerificationURIComplete != "" {
		if err := shared.OpenBrowser(deviceAuth.VerificationURIComplete); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	r.logger.Info("waiting for device confirmation")
	if err := auth.WaitForDeviceFlow(ctx, deviceAuth); err != nil {
		return err
	}

	r.writePlainln("✓ Authenticated with Yoto")
	return nil
}

// AuthStatus reports whether a usable token is stored.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	db, err := repositories.Open(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	auth := yoto.NewAuth(config.Yoto, repositories.NewTokenRepository(db))
	if !auth.Authenticated() {
		r.writePlain("Not authenticated. Run 'yotoup auth login'.\n")
		return nil
	}

	if _, err := auth.Token(ctx); err != nil {
		r.writePlain("Stored token is unusable: %v\n", err)
		return nil
	}

	r.writePlain("Authenticated with Yoto.\n")
	return nil
}

// AuthLogout clears the stored token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	db, err := repositories.Open(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := repositories.NewTokenRepository(db).ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}

	r.writePlain("Logged out.\n")
	return nil
}
