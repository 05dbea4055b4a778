// package uploads implements upload sessions: the in-memory session
// registry, the registration orchestrator and the worker-pool processing
// engine that moves every file through the pipeline and appends the results
// to the target playlist.
package uploads

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"yotoup/internal/models"
	"yotoup/internal/shared"
)

// stopMessage is attached to every non-terminal file when a session is stopped.
const stopMessage = "upload stopped by user"

// Registry owns the authoritative in-memory map of upload sessions.
//
// Every mutation of session or file state goes through a registry method
// under one mutex, so two workers touching the same file can never
// interleave a read-modify-write. Methods return deep copies; callers never
// hold references into live state. The registry itself never touches disk
// or network.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*models.UploadSession
	stopped  map[string]bool
	claimed  map[string]bool

	expiry time.Duration
	logger *log.Logger
}

// NewRegistry creates an empty session registry. Sessions older than expiry
// become eligible for the CleanupExpired sweep.
func NewRegistry(expiry time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Registry{
		sessions: make(map[string]*models.UploadSession),
		stopped:  make(map[string]bool),
		claimed:  make(map[string]bool),
		expiry:   expiry,
		logger:   shared.WithLogger(logger, "component", "registry"),
	}
}

// Create allocates a new session for the playlist with the given
// configuration, filling unset numeric options with defaults.
func (r *Registry) Create(playlistID, owner string, cfg models.SessionConfig) *models.UploadSession {
	cfg.ApplyDefaults()

	session := &models.UploadSession{
		SessionID:  shared.GenerateID(),
		PlaylistID: playlistID,
		Owner:      owner,
		CreatedAt:  time.Now(),
		Config:     cfg,
	}

	r.mu.Lock()
	r.sessions[session.SessionID] = session
	r.mu.Unlock()

	r.logger.Info("session created", "session", session.SessionID, "playlist", playlistID, "mode", cfg.Mode)
	return snapshot(session)
}

// Get returns a copy of the session, or ErrSessionNotFound.
func (r *Registry) Get(sessionID string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	return snapshot(session), nil
}

// Delete removes a session and returns its final snapshot so the caller can
// clean up temp artifacts. Returns nil when the session does not exist.
func (r *Registry) Delete(sessionID string) *models.UploadSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(r.sessions, sessionID)
	delete(r.stopped, sessionID)
	delete(r.claimed, sessionID)
	return snapshot(session)
}

// SessionsForPlaylist returns copies of every session targeting the playlist.
func (r *Registry) SessionsForPlaylist(playlistID string) []*models.UploadSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.UploadSession
	for _, session := range r.sessions {
		if session.PlaylistID == playlistID {
			result = append(result, snapshot(session))
		}
	}
	return result
}

// RegisterFile appends a new file entry in the given initial state and adds
// it to the session's remaining work-list.
func (r *Registry) RegisterFile(sessionID, filename string, size int64, originalTitle string, initial models.FileState) (*models.UploadFileStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	if r.stopped[sessionID] {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionStopped, sessionID)
	}

	file := &models.UploadFileStatus{
		FileID:        shared.GenerateID(),
		Filename:      filename,
		SizeBytes:     size,
		State:         initial,
		OriginalTitle: originalTitle,
	}
	session.Files = append(session.Files, file)
	session.Remaining = append(session.Remaining, file.FileID)

	copied := *file
	return &copied, nil
}

// SetTempPath records the local artifact path for a file.
func (r *Registry) SetTempPath(sessionID, fileID, path string) error {
	return r.mutateFile(sessionID, fileID, func(f *models.UploadFileStatus) {
		f.TempPath = path
	})
}

// SetSize records the materialized byte size of a file. URL sources only
// learn their size after the download completes.
func (r *Registry) SetSize(sessionID, fileID string, size int64) error {
	return r.mutateFile(sessionID, fileID, func(f *models.UploadFileStatus) {
		f.SizeBytes = size
	})
}

// MarkUploaded transitions a file to uploaded and timestamps it.
func (r *Registry) MarkUploaded(sessionID, fileID string) error {
	return r.mutateFile(sessionID, fileID, func(f *models.UploadFileStatus) {
		now := time.Now()
		f.State = models.FileUploaded
		f.UploadedAt = &now
	})
}

// MarkStep transitions a file to an intermediate pipeline state.
func (r *Registry) MarkStep(sessionID, fileID string, state models.FileState) error {
	return r.mutateFile(sessionID, fileID, func(f *models.UploadFileStatus) {
		f.State = state
	})
}

// MarkDone transitions a file to its terminal done state.
func (r *Registry) MarkDone(sessionID, fileID string) error {
	return r.mutateFile(sessionID, fileID, func(f *models.UploadFileStatus) {
		f.State = models.FileDone
		f.Error = ""
	})
}

// MarkError transitions a file to its terminal error state with a message.
func (r *Registry) MarkError(sessionID, fileID, message string) error {
	if message == "" {
		message = "unknown error"
	}
	return r.mutateFile(sessionID, fileID, func(f *models.UploadFileStatus) {
		f.State = models.FileError
		f.Error = message
	})
}

// mutateFile applies fn to a file under the registry lock. Terminal files
// are left untouched so a late worker cannot resurrect a stopped or errored
// entry.
func (r *Registry) mutateFile(sessionID, fileID string, fn func(*models.UploadFileStatus)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	file := session.File(fileID)
	if file == nil {
		return fmt.Errorf("%w: %s", shared.ErrFileNotFound, fileID)
	}
	if file.State.Terminal() {
		return nil
	}
	fn(file)
	return nil
}

// UpdateTempPaths replaces temp paths for multiple files at once, used after
// a batch normalization pass.
func (r *Registry) UpdateTempPaths(sessionID string, paths map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	for fileID, path := range paths {
		if file := session.File(fileID); file != nil {
			file.TempPath = path
		}
	}
	return nil
}

// FinishFile removes the file from the session's remaining work-list.
//
// When the list becomes empty the first caller to observe that is handed
// the finalization responsibility: finalize is true exactly once per
// session.
func (r *Registry) FinishFile(sessionID, fileID string) (remaining int, finalize bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}

	for i, id := range session.Remaining {
		if id == fileID {
			session.Remaining = append(session.Remaining[:i], session.Remaining[i+1:]...)
			break
		}
	}

	remaining = len(session.Remaining)
	if remaining == 0 && !session.Finalized && !r.claimed[sessionID] {
		r.claimed[sessionID] = true
		finalize = true
	}
	return remaining, finalize, nil
}

// MarkFinalized records the playlist chapters created for this session and
// flips the session into its derived done state.
func (r *Registry) MarkFinalized(sessionID string, chapterKeys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	session.NewChapterKeys = append([]string(nil), chapterKeys...)
	session.Finalized = true
	return nil
}

// MarkFinalizeError records a playlist-append failure and still finalizes
// the session so its status settles.
func (r *Registry) MarkFinalizeError(sessionID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	session.FinalizeError = message
	session.Finalized = true
	return nil
}

// FailAll marks every non-terminal file with the same error, clears the
// remaining work-list and finalizes the session. Used when a batch
// normalization pass fails for the whole set.
func (r *Registry) FailAll(sessionID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	for _, file := range session.Files {
		if !file.State.Terminal() {
			file.State = models.FileError
			file.Error = message
		}
	}
	session.Remaining = nil
	session.Finalized = true
	return nil
}

// Stop sets the session's stop flag and marks every non-terminal file as
// errored with a stop message. Workers observe the flag at step boundaries
// and abandon their file without further transitions.
func (r *Registry) Stop(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}

	r.stopped[sessionID] = true
	for _, file := range session.Files {
		if !file.State.Terminal() {
			file.State = models.FileError
			file.Error = stopMessage
		}
	}
	session.Remaining = nil
	session.Finalized = true

	r.logger.Info("session stopped", "session", sessionID)
	return nil
}

// Stopped reports whether Stop has been called for the session.
func (r *Registry) Stopped(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped[sessionID]
}

// CleanupExpired removes sessions older than the registry's expiry and
// returns their final snapshots so temp artifacts can be removed.
func (r *Registry) CleanupExpired(now time.Time) []*models.UploadSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*models.UploadSession
	for id, session := range r.sessions {
		if now.Sub(session.CreatedAt) > r.expiry {
			removed = append(removed, snapshot(session))
			delete(r.sessions, id)
			delete(r.stopped, id)
			delete(r.claimed, id)
		}
	}
	if len(removed) > 0 {
		r.logger.Info("expired sessions removed", "count", len(removed))
	}
	return removed
}

// snapshot deep-copies a session so callers cannot mutate live state.
func snapshot(s *models.UploadSession) *models.UploadSession {
	copied := *s
	copied.Files = make([]*models.UploadFileStatus, len(s.Files))
	for i, f := range s.Files {
		file := *f
		copied.Files[i] = &file
	}
	copied.Remaining = append([]string(nil), s.Remaining...)
	copied.NewChapterKeys = append([]string(nil), s.NewChapterKeys...)
	return &copied
}
