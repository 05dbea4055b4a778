package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"yotoup/internal/audio"
	"yotoup/internal/icons"
	"yotoup/internal/repositories"
	"yotoup/internal/server"
	"yotoup/internal/shared"
	"yotoup/internal/sources"
	"yotoup/internal/uploads"
	"yotoup/internal/yoto"
)

// cleanupInterval is how often expired sessions are swept.
const cleanupInterval = time.Hour

// services bundles the wired upload stack shared by the serve and upload commands.
type services struct {
	db       *sql.DB
	auth     *yoto.Auth
	client   *yoto.Client
	registry *uploads.Registry
	engine   *uploads.Engine
	orch     *uploads.Orchestrator
	icons    *icons.Fetcher
}

// buildServices opens the database and wires the client, pipeline, and
// orchestrator from configuration.
func (r *Runner) buildServices(config *shared.Config) (*services, error) {
	db, err := repositories.Open(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	auth := yoto.NewAuth(config.Yoto, repositories.NewTokenRepository(db))
	client := yoto.NewClient(config.Yoto, auth, r.httpClient, r.logger)
	processor := audio.NewFFmpegProcessor(config.Tools, r.logger)
	cache := repositories.NewUploadCacheRepository(db)

	tempDir := config.Uploads.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	providers := sources.NewRegistry()
	providers.Register(sources.SchemeYouTube, sources.NewYTDLProvider(config.Tools, tempDir, r.logger))

	expiry := time.Duration(config.Uploads.SessionExpiryHours * float64(time.Hour))
	registry := uploads.NewRegistry(expiry, r.logger)
	engine := uploads.NewEngine(registry, client, processor, cache, config.Uploads.Workers, r.logger)
	orch := uploads.NewOrchestrator(registry, engine, providers, tempDir, r.logger)

	return &services{
		db:       db,
		auth:     auth,
		client:   client,
		registry: registry,
		engine:   engine,
		orch:     orch,
		icons:    icons.NewFetcher(client, r.logger),
	}, nil
}

// Serve runs the upload session API server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	svc, err := r.buildServices(config)
	if err != nil {
		return err
	}
	defer svc.db.Close()

	if !svc.auth.Authenticated() {
		r.logger.Warn("no stored Yoto token, run 'yotoup auth login' before uploading")
	}

	engineCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.engine.Start(engineCtx)

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-engineCtx.Done():
				return
			case <-ticker.C:
				if removed := svc.orch.CleanupExpired(); removed > 0 {
					r.logger.Info("swept expired sessions", "count", removed)
				}
			}
		}
	}()

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Use(server.Logging(r.logger))
	router.Handler(server.NewSessionHandler(svc.orch, r.logger))
	router.Handler(server.NewIconHandler(svc.icons, svc.client))

	host := config.Server.Host
	if cmd.String("host") != "" {
		host = cmd.String("host")
	}
	port := config.Server.Port
	if cmd.Int("port") != 0 {
		port = int(cmd.Int("port"))
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	r.logger.Info("server listening", "addr", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-sig:
		r.logger.Info("shutting down")
		shutdownCtx, release := context.WithTimeout(context.Background(), 10*time.Second)
		defer release()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("shutdown error", "error", err)
		}
	}

	return nil
}
