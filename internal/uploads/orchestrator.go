package uploads

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"yotoup/internal/models"
	"yotoup/internal/shared"
	"yotoup/internal/sources"
)

// Orchestrator is the registration entry point for upload sessions. It
// materializes file bytes (directly supplied or downloaded through a source
// provider) into session-scoped temp storage and hands ready files to the
// engine.
type Orchestrator struct {
	registry  *Registry
	engine    *Engine
	providers *sources.Registry
	tempRoot  string
	logger    *log.Logger
}

// NewOrchestrator creates an orchestrator. tempRoot defaults to the system
// temp directory.
func NewOrchestrator(registry *Registry, engine *Engine, providers *sources.Registry, tempRoot string, logger *log.Logger) *Orchestrator {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Orchestrator{
		registry:  registry,
		engine:    engine,
		providers: providers,
		tempRoot:  tempRoot,
		logger:    shared.WithLogger(logger, "component", "orchestrator"),
	}
}

// CreateSession allocates a new upload session for the playlist.
func (o *Orchestrator) CreateSession(playlistID, owner string, cfg models.SessionConfig) *models.UploadSession {
	return o.registry.Create(playlistID, owner, cfg)
}

// Session returns a status snapshot of the session.
func (o *Orchestrator) Session(sessionID string) (*models.UploadSession, error) {
	return o.registry.Get(sessionID)
}

// SessionsForPlaylist returns snapshots of every session targeting the playlist.
func (o *Orchestrator) SessionsForPlaylist(playlistID string) []*models.UploadSession {
	return o.registry.SessionsForPlaylist(playlistID)
}

// RegisterFileOnly creates a file entry awaiting its bytes.
func (o *Orchestrator) RegisterFileOnly(sessionID, filename string, size int64) (*models.UploadFileStatus, error) {
	return o.registry.RegisterFile(sessionID, filename, size, "", models.FileUploadingLocal)
}

// RegisterURLOnly creates a file entry for a scheme-prefixed source key.
//
// The scheme must have a registered provider; when the provider also
// supplies metadata, its title becomes the filename.
func (o *Orchestrator) RegisterURLOnly(ctx context.Context, sessionID, key string) (*models.UploadFileStatus, error) {
	scheme, rest, err := sources.ParseKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := o.providers.Lookup(scheme); err != nil {
		o.logger.Error("no provider for source", "scheme", scheme, "key", key)
		return nil, err
	}

	filename := rest
	var originalTitle string
	if meta, ok := o.providers.Metadata(scheme); ok {
		if title, err := meta.Title(ctx, rest); err == nil && title != "" {
			filename = title
			originalTitle = title
		} else if err != nil {
			o.logger.Warn("source title lookup failed", "key", key, "err", err)
		}
	}

	return o.registry.RegisterFile(sessionID, filename, 0, originalTitle, models.FileDownloadingRemote)
}

// UpdateAndProcessFile persists directly-supplied bytes for a registered
// file and, unless the session normalizes as a batch, enqueues it
// immediately so processing starts before sibling uploads finish.
func (o *Orchestrator) UpdateAndProcessFile(ctx context.Context, sessionID, playlistID, fileID, filename string, data []byte) error {
	job := Job{SessionID: sessionID, FileID: fileID, PlaylistID: playlistID}

	path, err := o.saveBytes(sessionID, fileID, filename, data)
	if err != nil {
		o.engine.Fail(ctx, job, err)
		return err
	}

	return o.fileReady(ctx, job, path, int64(len(data)))
}

// UpdateAndProcessURL downloads a registered URL source in a detached
// background task so the caller is not blocked on the transfer.
func (o *Orchestrator) UpdateAndProcessURL(ctx context.Context, sessionID, playlistID, fileID, key string) error {
	scheme, rest, err := sources.ParseKey(key)
	if err != nil {
		return err
	}
	provider, err := o.providers.Lookup(scheme)
	if err != nil {
		return err
	}

	job := Job{SessionID: sessionID, FileID: fileID, PlaylistID: playlistID}
	go func() {
		// Detach from the request context: the download outlives the caller.
		ctx := context.WithoutCancel(ctx)

		resolved, err := provider.Resolve(ctx, rest)
		if err != nil {
			o.engine.Fail(ctx, job, err)
			return
		}

		// Copy into session scope: resolved downloads are shared between
		// concurrent registrations and must survive per-file cleanup.
		path, size, err := o.adoptFile(sessionID, fileID, resolved)
		if err != nil {
			o.engine.Fail(ctx, job, err)
			return
		}

		if err := o.fileReady(ctx, job, path, size); err != nil {
			o.logger.Error("failed to hand off download", "session", sessionID, "file", fileID, "err", err)
		}
	}()
	return nil
}

// fileReady records the materialized artifact and enqueues the file unless
// the session is batch-normalized (those wait for FinalizeBatch).
func (o *Orchestrator) fileReady(ctx context.Context, job Job, path string, size int64) error {
	session, err := o.registry.Get(job.SessionID)
	if err != nil {
		os.Remove(path)
		return err
	}

	o.registry.SetTempPath(job.SessionID, job.FileID, path)
	o.registry.SetSize(job.SessionID, job.FileID, size)
	if err := o.registry.MarkUploaded(job.SessionID, job.FileID); err != nil {
		return err
	}

	if !session.Config.NormalizeBatch {
		o.engine.Enqueue(job)
	}
	return nil
}

// FinalizeBatch enqueues every uploaded file of a batch-normalize session.
// Called once the caller has finished registering and uploading all files.
func (o *Orchestrator) FinalizeBatch(sessionID, playlistID string) error {
	session, err := o.registry.Get(sessionID)
	if err != nil {
		return err
	}

	for _, file := range session.Files {
		if file.State == models.FileUploaded {
			o.engine.Enqueue(Job{SessionID: sessionID, FileID: file.FileID, PlaylistID: playlistID})
		}
	}
	return nil
}

// StopSession stops a session: in-flight workers abandon their files at the
// next step boundary and every non-terminal file is marked with a stop
// message.
func (o *Orchestrator) StopSession(sessionID string) error {
	return o.registry.Stop(sessionID)
}

// DeleteSession removes a session and its temp artifacts.
func (o *Orchestrator) DeleteSession(sessionID string) bool {
	session := o.registry.Delete(sessionID)
	if session == nil {
		return false
	}
	os.RemoveAll(o.sessionDir(sessionID))
	return true
}

// CleanupExpired sweeps expired sessions and their temp directories.
func (o *Orchestrator) CleanupExpired() int {
	removed := o.registry.CleanupExpired(time.Now())
	for _, session := range removed {
		os.RemoveAll(o.sessionDir(session.SessionID))
	}
	return len(removed)
}

// saveBytes writes uploaded bytes into the session's temp directory and
// verifies the write before the file may proceed.
func (o *Orchestrator) saveBytes(sessionID, fileID, filename string, data []byte) (string, error) {
	dir := o.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	path := filepath.Join(dir, fileID+filepath.Ext(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil || info.Size() != int64(len(data)) {
		return "", fmt.Errorf("saved upload failed verification: %s", filepath.Base(path))
	}
	return path, nil
}

// adoptFile copies a provider-resolved download into the session's temp
// directory.
func (o *Orchestrator) adoptFile(sessionID, fileID, resolved string) (string, int64, error) {
	dir := o.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create session directory: %w", err)
	}

	src, err := os.Open(resolved)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open download: %w", err)
	}
	defer src.Close()

	path := filepath.Join(dir, fileID+filepath.Ext(resolved))
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create session copy: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to copy download: %w", err)
	}
	return path, size, nil
}

func (o *Orchestrator) sessionDir(sessionID string) string {
	return filepath.Join(o.tempRoot, "yotoup", sessionID)
}
