package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"yotoup/internal/models"
	"yotoup/internal/shared"
	"yotoup/internal/sources"
)

// Upload runs a full upload session from the command line: every argument is
// either a local file path or a scheme-prefixed source key like
// "youtube:VIDEO_ID". Blocks until the session settles and prints the result.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	inputs := cmd.Args().Slice()
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one file or source key", shared.ErrMissingArgument)
	}

	config := r.loadConfig(cmd.String("config"))

	svc, err := r.buildServices(config)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	if !svc.auth.Authenticated() {
		return fmt.Errorf("%w: run 'yotoup auth login' first", shared.ErrNotAuthenticated)
	}

	engineCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.engine.Start(engineCtx)

	playlistID := cmd.String("playlist-id")
	sessionConfig := models.SessionConfig{
		Mode:           models.UploadMode(cmd.String("mode")),
		Normalize:      cmd.Bool("normalize"),
		NormalizeBatch: cmd.Bool("normalize-batch"),
		TargetLUFS:     config.Uploads.TargetLUFS,
	}

	session := svc.orch.CreateSession(playlistID, "", sessionConfig)
	r.logger.Info("created upload session", "session", session.SessionID, "playlist", playlistID)

	for _, input := range inputs {
		if err := r.submit(ctx, svc, session.SessionID, playlistID, input); err != nil {
			return err
		}
	}

	if sessionConfig.NormalizeBatch {
		if err := svc.orch.FinalizeBatch(session.SessionID, playlistID); err != nil {
			return err
		}
	}

	final, err := r.await(ctx, svc, session.SessionID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"session":        final,
			"overall_status": final.OverallStatus(),
		}, cmd.Bool("pretty"))
	}

	r.writePlainln("Session %s finished: %s", final.SessionID, final.OverallStatus())
	for _, file := range final.Files {
		if file.State == models.FileError {
			r.writePlain("  ✗ %s: %s\n", file.Filename, file.Error)
		} else {
			r.writePlain("  ✓ %s\n", file.Filename)
		}
	}
	return nil
}

// submit registers one input with the session. Source keys are resolved by a
// provider in the background; file paths are read and handed off directly.
func (r *Runner) submit(ctx context.Context, svc *services, sessionID, playlistID, input string) error {
	if scheme, _, err := sources.ParseKey(input); err == nil && scheme == sources.SchemeYouTube {
		file, err := svc.orch.RegisterURLOnly(ctx, sessionID, input)
		if err != nil {
			return err
		}
		return svc.orch.UpdateAndProcessURL(ctx, sessionID, playlistID, file.FileID, input)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", input, err)
	}

	filename := filepath.Base(input)
	file, err := svc.orch.RegisterFileOnly(sessionID, filename, int64(len(data)))
	if err != nil {
		return err
	}
	return svc.orch.UpdateAndProcessFile(ctx, sessionID, playlistID, file.FileID, filename, data)
}

// await polls the session until every file reaches a terminal state.
func (r *Runner) await(ctx context.Context, svc *services, sessionID string) (*models.UploadSession, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		session, err := svc.orch.Session(sessionID)
		if err != nil {
			return nil, err
		}

		switch session.OverallStatus() {
		case models.SessionSuccess, models.SessionPartialSuccess, models.SessionAllError:
			return session, nil
		}

		select {
		case <-ctx.Done():
			svc.orch.StopSession(sessionID)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
