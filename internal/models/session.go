// package models defines the data model for the upload pipeline
package models

import (
	"time"
)

// FileState represents the processing state of a single file in an upload session.
//
// The state machine is linear: pending -> uploading_local (file) or
// downloading_remote (url) -> uploaded -> normalizing -> analyzing ->
// yoto_uploading -> creating_track -> done. Any state may transition to
// error instead; done and error are terminal.
type FileState string

const (
	FilePending           FileState = "pending"
	FileUploadingLocal    FileState = "uploading_local"
	FileDownloadingRemote FileState = "downloading_remote"
	FileUploaded          FileState = "uploaded"
	FileNormalizing       FileState = "normalizing"
	FileAnalyzing         FileState = "analyzing"
	FileYotoUploading     FileState = "yoto_uploading"
	FileCreatingTrack     FileState = "creating_track"
	FileDone              FileState = "done"
	FileError             FileState = "error"
)

// Terminal reports whether the state is done or error.
func (s FileState) Terminal() bool {
	return s == FileDone || s == FileError
}

// SessionState represents the derived overall state of an upload session.
type SessionState string

const (
	SessionPending        SessionState = "pending"
	SessionProcessing     SessionState = "processing"
	SessionSuccess        SessionState = "success"
	SessionPartialSuccess SessionState = "partial_success"
	SessionAllError       SessionState = "all_error"
)

// UploadMode controls how processed tracks are appended to the playlist:
// one chapter per track ("chapters") or one chapter containing every track ("tracks").
type UploadMode string

const (
	ModeChapters UploadMode = "chapters"
	ModeTracks   UploadMode = "tracks"
)

// Defaults applied by SessionConfig.ApplyDefaults for unset numeric options.
const (
	DefaultTargetLUFS          = -23.0
	DefaultSegmentSeconds      = 10.0
	DefaultSimilarityThreshold = 0.75
)

// SessionConfig holds the upload configuration chosen when a session is created.
type SessionConfig struct {
	Mode                UploadMode `json:"upload_mode"`
	Normalize           bool       `json:"normalize"`
	NormalizeBatch      bool       `json:"normalize_batch"`
	TargetLUFS          float64    `json:"target_lufs"`
	AnalyzeIntroOutro   bool       `json:"analyze_intro_outro"`
	SegmentSeconds      float64    `json:"segment_seconds"`
	SimilarityThreshold float64    `json:"similarity_threshold"`
}

// ApplyDefaults fills unset options with their default constants.
func (c *SessionConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeChapters
	}
	if c.TargetLUFS == 0 {
		c.TargetLUFS = DefaultTargetLUFS
	}
	if c.SegmentSeconds == 0 {
		c.SegmentSeconds = DefaultSegmentSeconds
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
}

// UploadFileStatus tracks one file or URL-sourced item within a session.
type UploadFileStatus struct {
	FileID        string     `json:"file_id"`
	Filename      string     `json:"filename"`
	SizeBytes     int64      `json:"size_bytes"`
	State         FileState  `json:"state"`
	Error         string     `json:"error,omitempty"`
	TempPath      string     `json:"-"`
	OriginalTitle string     `json:"original_title,omitempty"`
	UploadedAt    *time.Time `json:"uploaded_at,omitempty"`
}

// UploadSession represents one batch upload operation targeting a single playlist.
//
// All mutation goes through the uploads.Registry; nothing outside the
// registry writes these fields once the session is shared across goroutines.
type UploadSession struct {
	SessionID  string    `json:"session_id"`
	PlaylistID string    `json:"playlist_id"`
	Owner      string    `json:"owner"`
	CreatedAt  time.Time `json:"created_at"`

	Config SessionConfig `json:"config"`

	Files []*UploadFileStatus `json:"files"`

	// Remaining holds IDs of files still needing processing. The worker
	// that removes the last entry is responsible for finalization.
	Remaining []string `json:"-"`

	NewChapterKeys []string `json:"new_chapter_keys"`
	Finalized      bool     `json:"finalized"`

	// FinalizeError records a playlist-append failure. Per-file done states
	// are not reverted: the audio reached the content store, only the
	// playlist write failed and can be retried by the caller.
	FinalizeError string `json:"finalize_error,omitempty"`
}

// File returns the file entry with the given ID, or nil.
func (s *UploadSession) File(fileID string) *UploadFileStatus {
	for _, f := range s.Files {
		if f.FileID == fileID {
			return f
		}
	}
	return nil
}

// OverallStatus derives the session state from its file states and the finalized flag.
//
// A done variant is reported only once every file is terminal and
// finalization has run.
func (s *UploadSession) OverallStatus() SessionState {
	if len(s.Files) == 0 {
		return SessionPending
	}

	allTerminal := true
	allError := true
	allDone := true
	anyActive := false
	for _, f := range s.Files {
		if !f.State.Terminal() {
			allTerminal = false
		}
		if f.State != FileError {
			allError = false
		}
		if f.State != FileDone {
			allDone = false
		}
		if f.State != FilePending && !f.State.Terminal() {
			anyActive = true
		}
	}

	if allTerminal && s.Finalized {
		switch {
		case allError:
			return SessionAllError
		case allDone:
			return SessionSuccess
		default:
			return SessionPartialSuccess
		}
	}

	if anyActive {
		return SessionProcessing
	}
	return SessionPending
}
