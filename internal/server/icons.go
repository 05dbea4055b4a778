package server

import (
	"context"
	"net/http"

	"yotoup/internal/icons"
	"yotoup/internal/yoto"
)

// IconLister lists display icon manifests. Satisfied by *yoto.Client.
type IconLister interface {
	Icons(ctx context.Context, user bool) ([]yoto.DisplayIcon, error)
}

// IconHandler serves the display icon manifest and proxies icon images
// through the deduplicating fetcher.
type IconHandler struct {
	fetcher *icons.Fetcher
	lister  IconLister
}

// NewIconHandler creates a handler backed by the icon fetcher and lister.
func NewIconHandler(fetcher *icons.Fetcher, lister IconLister) *IconHandler {
	return &IconHandler{fetcher: fetcher, lister: lister}
}

// Routes implements [Handler].
func (h *IconHandler) Routes() []string {
	return []string{"GET /api/icons"}
}

// ServeHTTP implements [http.Handler]. With a url query parameter the icon
// image is proxied; without one the manifest is listed.
func (h *IconHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	iconURL := r.URL.Query().Get("url")
	if iconURL == "" {
		h.list(w, r)
		return
	}

	data, err := h.fetcher.Fetch(r.Context(), iconURL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

func (h *IconHandler) list(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user") == "me"

	manifest, err := h.lister.Icons(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"icons": manifest})
}
