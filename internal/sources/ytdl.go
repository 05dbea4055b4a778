package sources

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"yotoup/internal/flight"
	"yotoup/internal/shared"
)

// SchemeYouTube is the source key scheme handled by [YTDLProvider].
const SchemeYouTube = "youtube"

// YTDLProvider resolves YouTube video IDs and URLs into local audio files
// by shelling out to yt-dlp.
//
// Concurrent resolutions of the same key share one download through the
// single-flight cache.
type YTDLProvider struct {
	binary  string
	tempDir string
	logger  *log.Logger
	flights flight.Cache[string]

	// run executes a command and returns its combined output. Swapped out
	// in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewYTDLProvider creates a provider using the configured yt-dlp binary.
// Downloads land in tempDir.
func NewYTDLProvider(cfg shared.ToolsConfig, tempDir string, logger *log.Logger) *YTDLProvider {
	binary := cfg.YTDLPath
	if binary == "" {
		binary = "yt-dlp"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLProvider{
		binary:  binary,
		tempDir: tempDir,
		logger:  shared.WithLogger(logger, "component", "sources"),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Resolve implements [Provider]. The key is the part after "youtube:",
// either a bare video ID or a full URL.
func (p *YTDLProvider) Resolve(ctx context.Context, key string) (string, error) {
	path, _, err := p.flights.Do(ctx, "ytdl:"+key, func(ctx context.Context) (string, error) {
		return p.download(ctx, key)
	})
	return path, err
}

// Title implements [MetadataProvider].
func (p *YTDLProvider) Title(ctx context.Context, key string) (string, error) {
	output, err := p.run(ctx, p.binary, "--no-download", "--print", "title", videoURL(key))
	if err != nil {
		return "", fmt.Errorf("yt-dlp title: %w: %s", err, strings.TrimSpace(string(output)))
	}
	title := strings.TrimSpace(string(output))
	if title == "" {
		return "", fmt.Errorf("yt-dlp returned no title for %q", key)
	}
	return title, nil
}

func (p *YTDLProvider) download(ctx context.Context, key string) (string, error) {
	dir := filepath.Join(p.tempDir, "ytdl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	output := filepath.Join(dir, sanitizeKey(key)+".mp3")
	p.logger.Info("downloading audio", "key", key)

	out, err := p.run(ctx, p.binary,
		"--no-playlist",
		"-x", "--audio-format", "mp3",
		"-o", output,
		videoURL(key),
	)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download: %w: %s", err, strings.TrimSpace(string(out)))
	}

	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("yt-dlp reported success but %s is missing", filepath.Base(output))
	}
	return output, nil
}

// videoURL expands a bare 11-character video ID into a watch URL; full URLs
// pass through unchanged.
func videoURL(key string) string {
	if strings.Contains(key, "://") {
		return key
	}
	return "https://www.youtube.com/watch?v=" + key
}

// sanitizeKey makes a source key safe to use as a file name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}
