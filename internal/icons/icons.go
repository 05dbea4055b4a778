// package icons fetches and caches playlist icon images.
package icons

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"yotoup/internal/flight"
	"yotoup/internal/shared"
)

// Source downloads icon bytes from a public URL. Satisfied by *yoto.Client.
type Source interface {
	FetchIcon(ctx context.Context, iconURL string) ([]byte, error)
}

// Fetcher deduplicates and caches icon downloads.
//
// Concurrent requests for the same URL share one fetch through the
// single-flight cache; resolved icons are kept in memory so repeat requests
// never refetch.
type Fetcher struct {
	source Source
	logger *log.Logger

	flights flight.Cache[[]byte]

	mu    sync.RWMutex
	icons map[string][]byte
}

// NewFetcher creates an icon fetcher backed by the given source.
func NewFetcher(source Source, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Fetcher{
		source: source,
		logger: shared.WithLogger(logger, "component", "icons"),
		icons:  make(map[string][]byte),
	}
}

// Fetch returns the icon bytes for a URL, downloading at most once per URL
// no matter how many callers race.
func (f *Fetcher) Fetch(ctx context.Context, iconURL string) ([]byte, error) {
	f.mu.RLock()
	cached, ok := f.icons[iconURL]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	data, shared, err := f.flights.Do(ctx, iconURL, func(ctx context.Context) ([]byte, error) {
		return f.source.FetchIcon(ctx, iconURL)
	})
	if err != nil {
		return nil, err
	}

	if !shared {
		f.logger.Debug("icon fetched", "url", iconURL, "bytes", len(data))
	}

	f.mu.Lock()
	f.icons[iconURL] = data
	f.mu.Unlock()
	return data, nil
}

// Cached reports the number of icons held in memory.
func (f *Fetcher) Cached() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.icons)
}
