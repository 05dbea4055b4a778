package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"yotoup/internal/models"
	"yotoup/internal/shared"
	"yotoup/internal/uploads"
)

// maxUploadBytes bounds a single file upload body.
const maxUploadBytes = 512 << 20

// SessionHandler serves the upload-session API.
type SessionHandler struct {
	orch   *uploads.Orchestrator
	logger *log.Logger
}

// NewSessionHandler creates a handler backed by the orchestrator.
func NewSessionHandler(orch *uploads.Orchestrator, logger *log.Logger) *SessionHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SessionHandler{orch: orch, logger: shared.WithLogger(logger, "component", "server")}
}

// Routes implements [Handler].
func (h *SessionHandler) Routes() []string {
	return []string{
		"POST /api/sessions",
		"GET /api/sessions/{id}",
		"DELETE /api/sessions/{id}",
		"POST /api/sessions/{id}/stop",
		"POST /api/sessions/{id}/process",
		"POST /api/sessions/{id}/files",
		"PUT /api/sessions/{id}/files/{fileID}",
		"POST /api/sessions/{id}/urls",
		"POST /api/sessions/{id}/urls/{fileID}",
		"GET /api/playlists/{id}/sessions",
	}
}

// ServeHTTP implements [http.Handler], dispatching on the matched pattern.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fileID := r.PathValue("fileID")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodPost && path == "/api/sessions":
		h.create(w, r)
	case strings.HasPrefix(path, "/api/playlists/"):
		h.list(w, id)
	case fileID != "" && r.Method == http.MethodPut:
		h.uploadFile(w, r, id, fileID)
	case fileID != "" && r.Method == http.MethodPost:
		h.processURL(w, r, id, fileID)
	case strings.HasSuffix(path, "/stop"):
		h.stop(w, id)
	case strings.HasSuffix(path, "/process"):
		h.finalizeBatch(w, id)
	case strings.HasSuffix(path, "/files"):
		h.registerFile(w, r, id)
	case strings.HasSuffix(path, "/urls"):
		h.registerURL(w, r, id)
	case r.Method == http.MethodGet:
		h.get(w, id)
	case r.Method == http.MethodDelete:
		h.delete(w, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type createSessionRequest struct {
	PlaylistID string               `json:"playlist_id"`
	Owner      string               `json:"owner"`
	Config     models.SessionConfig `json:"config"`
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PlaylistID == "" {
		writeError(w, http.StatusBadRequest, "playlist_id is required")
		return
	}

	session := h.orch.CreateSession(req.PlaylistID, req.Owner, req.Config)
	writeJSON(w, http.StatusCreated, session)
}

func (h *SessionHandler) get(w http.ResponseWriter, id string) {
	session, err := h.orch.Session(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView(session))
}

func (h *SessionHandler) delete(w http.ResponseWriter, id string) {
	if !h.orch.DeleteSession(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) stop(w http.ResponseWriter, id string) {
	if err := h.orch.StopSession(id); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) finalizeBatch(w http.ResponseWriter, id string) {
	session, err := h.orch.Session(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if err := h.orch.FinalizeBatch(id, session.PlaylistID); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type registerFileRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (h *SessionHandler) registerFile(w http.ResponseWriter, r *http.Request, id string) {
	var req registerFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	file, err := h.orch.RegisterFileOnly(id, req.Filename, req.Size)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

type registerURLRequest struct {
	Key string `json:"key"`
}

func (h *SessionHandler) registerURL(w http.ResponseWriter, r *http.Request, id string) {
	var req registerURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	file, err := h.orch.RegisterURLOnly(r.Context(), id, req.Key)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

func (h *SessionHandler) uploadFile(w http.ResponseWriter, r *http.Request, id, fileID string) {
	session, err := h.orch.Session(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload body too large")
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = fileID
	}

	if err := h.orch.UpdateAndProcessFile(r.Context(), id, session.PlaylistID, fileID, filename, data); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *SessionHandler) processURL(w http.ResponseWriter, r *http.Request, id, fileID string) {
	var req registerURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	session, err := h.orch.Session(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	if err := h.orch.UpdateAndProcessURL(r.Context(), id, session.PlaylistID, fileID, req.Key); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *SessionHandler) list(w http.ResponseWriter, playlistID string) {
	sessions := h.orch.SessionsForPlaylist(playlistID)
	views := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, statusView(session))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// statusView is the progress snapshot rendered to clients.
func statusView(session *models.UploadSession) map[string]any {
	return map[string]any{
		"session":        session,
		"overall_status": session.OverallStatus(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeSessionError maps domain errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrSessionNotFound), errors.Is(err, shared.ErrFileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrSessionStopped):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, shared.ErrNoProvider), errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
